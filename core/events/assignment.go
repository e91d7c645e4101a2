package events

import (
	"time"

	"github.com/kilianp07/haulage/core/model"
)

// AssignmentEvent is emitted when a job is placed on or removed from a truck.
// Utilization is the bucket load after the change.
type AssignmentEvent struct {
	Assignment   model.Assignment
	Removed      bool
	Utilization  float64
	OverCapacity bool
	Time         time.Time
}

// NotificationEvent reports the final outcome of delivering a notification.
type NotificationEvent struct {
	Notification model.Notification
	Attempts     int
	Delivered    bool
	Err          error
}
