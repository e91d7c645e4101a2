// Package assignment keeps the mapping between jobs, trucks, days and time
// slots. Each job has at most one active assignment.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/haulage/core/model"
)

var ErrNotFound = errors.New("assignment: not found")

// Store persists assignments keyed by job id.
type Store interface {
	// Assign upserts the assignment of a.JobID. It returns the previous
	// assignment when one existed.
	Assign(ctx context.Context, a model.Assignment) (prev model.Assignment, existed bool, err error)
	Get(ctx context.Context, jobID string) (model.Assignment, error)
	Remove(ctx context.Context, jobID string) error
	// ListBucket returns every assignment for truckID on date in slot.
	ListBucket(ctx context.Context, truckID string, date time.Time, slot string) ([]model.Assignment, error)
	// ListRange returns the assignments of truckID with from <= date <= to.
	ListRange(ctx context.Context, truckID string, from, to time.Time) ([]model.Assignment, error)
}

// Normalize trims the date to a UTC day and stamps UpdatedAt when unset.
func Normalize(a model.Assignment, now time.Time) model.Assignment {
	a.Date = model.Day(a.Date)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now.UTC()
	}
	return a
}
