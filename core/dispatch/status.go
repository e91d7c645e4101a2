package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/model"
)

// BulkActions are the statuses a dispatcher may apply to many jobs at once.
var BulkActions = []model.JobStatus{
	model.StatusScheduled,
	model.StatusInTransit,
	model.StatusDelivered,
	model.StatusCancelled,
}

// BulkResult is the outcome for one job of a bulk action.
type BulkResult struct {
	JobID   string          `json:"jobId"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Status  model.JobStatus `json:"status,omitempty"`
}

// ApplyStatus moves a job to target through the transition table. Moving to
// DELIVERED also completes the driver status; cancelling or unscheduling
// releases the truck assignment.
func (m *Machine) ApplyStatus(ctx context.Context, jobID string, target model.JobStatus, actor string) (model.Job, error) {
	return m.ApplyStatusWithReason(ctx, jobID, target, "", actor)
}

// ApplyStatusWithReason is ApplyStatus with a dispatcher note. The reason is
// stored as the return reason when the job moves to RETURNED.
func (m *Machine) ApplyStatusWithReason(ctx context.Context, jobID string, target model.JobStatus, reason, actor string) (model.Job, error) {
	before, after, changed, err := m.update(ctx, jobID, func(j *model.Job) error {
		path, err := Plan(j.Status, target)
		if err != nil {
			return withJob(err, j.ID)
		}
		if len(path) == 0 {
			return errNoChange
		}
		if target == model.StatusApproved {
			j.TruckID = ""
			j.TimeSlotID = ""
		}
		if target == model.StatusDelivered {
			ts := m.now().UTC()
			j.DriverStatus = model.DriverCompleted
			j.DriverStatusUpdatedAt = &ts
			j.DriverStatusUpdatedBy = actor
			if j.ActualCompletionTime == nil {
				j.ActualCompletionTime = &ts
			}
		}
		if target == model.StatusReturned && reason != "" {
			j.ReturnReason = reason
		}
		j.Status = target
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}
	if !changed {
		return after, nil
	}
	if target == model.StatusCancelled || target == model.StatusApproved {
		m.release(ctx, jobID)
	}
	m.observe(ctx, before, after, actor, reason)
	m.notifyCustomer(ctx, after.CustomerID, model.Notification{
		JobID:   after.ID,
		Title:   fmt.Sprintf("Job %s %s", after.ReferenceNumber, after.Status),
		Message: fmt.Sprintf("Your delivery %s to %s is now %s", after.ReferenceNumber, after.DeliveryLocation, after.Status),
		Type:    model.NotifyJobStatus,
		Context: jobContext(after),
	})
	return after, nil
}

// BulkApplyStatus applies action to every job independently. A failing job
// never prevents the others from being updated. Results follow the order of
// ids.
func (m *Machine) BulkApplyStatus(ctx context.Context, ids []string, action model.JobStatus, actor string) ([]BulkResult, error) {
	if !validBulkAction(action) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBulkAction, action)
	}
	results := make([]BulkResult, len(ids))
	var g errgroup.Group
	g.SetLimit(m.cfg.BulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			res := BulkResult{JobID: id}
			j, err := m.ApplyStatus(ctx, id, action, actor)
			if err != nil {
				res.Error = err.Error()
				m.log.Warnf("bulk %s on job %s: %v", action, id, err)
			} else {
				res.Success = true
				res.Status = j.Status
			}
			bulkStatusResults.WithLabelValues(string(action), strconv.FormatBool(res.Success)).Inc()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func validBulkAction(s model.JobStatus) bool {
	for _, a := range BulkActions {
		if a == s {
			return true
		}
	}
	return false
}

// ResolveProblem confirms a driver reported problem and returns the job.
func (m *Machine) ResolveProblem(ctx context.Context, jobID, reason, actor string) (model.Job, error) {
	before, after, _, err := m.update(ctx, jobID, func(j *model.Job) error {
		if j.DriverStatus != model.DriverProblem {
			return fmt.Errorf("%w: job %s is %s", ErrNoProblemReported, j.ID, j.DriverStatus)
		}
		if _, err := Plan(j.Status, model.StatusReturned); err != nil {
			return withJob(err, j.ID)
		}
		j.Status = model.StatusReturned
		j.ReturnReason = reason
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}
	m.observe(ctx, before, after, actor, reason)
	m.notifyCustomer(ctx, after.CustomerID, model.Notification{
		JobID:   after.ID,
		Title:   fmt.Sprintf("Job %s returned", after.ReferenceNumber),
		Message: fmt.Sprintf("Delivery %s could not be completed: %s", after.ReferenceNumber, reason),
		Type:    model.NotifyJobStatus,
		Context: jobContext(after),
	})
	return after, nil
}

func (m *Machine) release(ctx context.Context, jobID string) {
	if err := m.assignments.Remove(ctx, jobID); err != nil && !errors.Is(err, assignment.ErrNotFound) {
		m.log.Errorf("release assignment of %s: %v", jobID, err)
	}
}
