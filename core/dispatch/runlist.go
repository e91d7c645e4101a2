package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jinzhu/now"

	"github.com/kilianp07/haulage/core/model"
)

// RunList returns the jobs assigned to a truck between two days, ordered by
// day, slot priority and reference. Cancelled jobs are left out.
func (m *Machine) RunList(ctx context.Context, truckID string, from, to time.Time) ([]model.Job, error) {
	if _, err := m.trucks.Truck(ctx, truckID); err != nil {
		return nil, err
	}
	as, err := m.assignments.ListRange(ctx, truckID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(as))
	for _, a := range as {
		j, err := m.jobs.Get(ctx, a.JobID)
		if err != nil {
			if errors.Is(mapJobErr(err, a.JobID), ErrJobNotFound) {
				m.log.Warnf("assignment of missing job %s on truck %s", a.JobID, truckID)
				continue
			}
			return nil, err
		}
		if j.Status == model.StatusCancelled {
			continue
		}
		out = append(out, j)
	}
	m.planner.SortRunList(out)
	return out, nil
}

// RunListForWeek returns the run list of the Monday to Sunday week that
// contains day.
func (m *Machine) RunListForWeek(ctx context.Context, truckID string, day time.Time) ([]model.Job, error) {
	cfg := &now.Config{WeekStartDay: time.Monday, TimeLocation: time.UTC}
	n := cfg.With(day.UTC())
	return m.RunList(ctx, truckID, n.BeginningOfWeek(), n.EndOfWeek())
}
