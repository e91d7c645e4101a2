// Package jobs persists dispatch jobs with optimistic concurrency. Every
// successful Update bumps the job version by one.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/haulage/core/model"
)

var (
	ErrNotFound        = errors.New("jobs: job not found")
	ErrExists          = errors.New("jobs: job already exists")
	ErrVersionConflict = errors.New("jobs: version conflict")
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	CustomerID string
	TruckID    string
	Status     model.JobStatus
	From       time.Time
	To         time.Time
}

// Match reports whether j satisfies the filter. From and To compare the
// requested day inclusively.
func (f Filter) Match(j model.Job) bool {
	if f.CustomerID != "" && j.CustomerID != f.CustomerID {
		return false
	}
	if f.TruckID != "" && j.TruckID != f.TruckID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	d := model.Day(j.RequestedDate)
	if !f.From.IsZero() && d.Before(model.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && d.After(model.Day(f.To)) {
		return false
	}
	return true
}

// Store persists jobs.
type Store interface {
	Create(ctx context.Context, j model.Job) error
	Get(ctx context.Context, id string) (model.Job, error)
	// Update replaces the job if its stored version equals expectedVersion
	// and returns the stored job with Version set to expectedVersion+1.
	Update(ctx context.Context, j model.Job, expectedVersion int64) (model.Job, error)
	List(ctx context.Context, f Filter) ([]model.Job, error)
}
