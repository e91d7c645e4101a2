package events

import (
	"time"

	"github.com/kilianp07/haulage/core/model"
)

// JobEvent is published for every accepted job status change, including
// job creation where From is empty.
type JobEvent struct {
	JobID     string
	Reference string
	From      model.JobStatus
	To        model.JobStatus
	Actor     string
	Time      time.Time
}

// DriverStatusEvent is published when a driver reports progress.
type DriverStatusEvent struct {
	JobID     string
	Reference string
	From      model.DriverStatus
	To        model.DriverStatus
	Actor     string
	Time      time.Time
}
