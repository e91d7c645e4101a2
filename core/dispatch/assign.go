package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/haulage/core/capacity"
	"github.com/kilianp07/haulage/core/events"
	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/kilianp07/haulage/core/model"
)

// AssignRequest places a job on a truck for a day and time slot. A zero
// Date keeps the job's requested date.
type AssignRequest struct {
	JobID      string    `json:"jobId"`
	TruckID    string    `json:"truckId"`
	Date       time.Time `json:"date"`
	TimeSlotID string    `json:"timeSlotId"`
	Actor      string    `json:"actor"`
}

// AssignResult is the outcome of an assignment. Warning describes the
// bucket load after the change and is advisory only.
type AssignResult struct {
	Job        model.Job         `json:"job"`
	Assignment model.Assignment  `json:"assignment"`
	Previous   *model.Assignment `json:"previous,omitempty"`
	Warning    capacity.Warning  `json:"warning"`
}

func assignable(s model.JobStatus) bool {
	return s == model.StatusApproved || s == model.StatusScheduled
}

// AssignJob upserts the job assignment and schedules an approved job. It
// never rejects on capacity grounds.
func (m *Machine) AssignJob(ctx context.Context, req AssignRequest) (AssignResult, error) {
	truck, err := m.trucks.Truck(ctx, req.TruckID)
	if err != nil {
		return AssignResult{}, err
	}
	cur, err := m.Job(ctx, req.JobID)
	if err != nil {
		return AssignResult{}, err
	}
	if !assignable(cur.Status) {
		return AssignResult{}, fmt.Errorf("%w: job %s is %s", ErrNotAssignable, cur.ID, cur.Status)
	}
	date := req.Date
	if date.IsZero() {
		date = cur.RequestedDate
	}
	slot := m.planner.Slots().Canonical(req.TimeSlotID)
	a := model.Assignment{JobID: cur.ID, TruckID: truck.ID, Date: model.Day(date), TimeSlotID: slot, UpdatedAt: m.now().UTC()}

	prev, existed, err := m.assignments.Assign(ctx, a)
	if err != nil {
		return AssignResult{}, fmt.Errorf("assign job %s: %w", cur.ID, err)
	}
	before, after, _, err := m.update(ctx, cur.ID, func(j *model.Job) error {
		if !assignable(j.Status) {
			return fmt.Errorf("%w: job %s is %s", ErrNotAssignable, j.ID, j.Status)
		}
		j.TruckID = truck.ID
		j.TimeSlotID = slot
		j.RequestedDate = a.Date
		if j.Status == model.StatusApproved {
			j.Status = model.StatusScheduled
		}
		return nil
	})
	if err != nil {
		m.compensate(ctx, a.JobID, prev, existed)
		return AssignResult{}, err
	}
	m.observe(ctx, before, after, req.Actor, "assigned to "+truck.ID)

	res := AssignResult{Job: after, Assignment: a}
	if existed {
		p := prev
		res.Previous = &p
	}
	res.Warning, err = m.BucketCapacity(ctx, truck.ID, a.Date, slot)
	if err != nil {
		m.log.Warnf("capacity for %s on %s/%s: %v", truck.ID, a.Date.Format(time.DateOnly), slot, err)
	} else if res.Warning.Active() {
		m.log.Warnf("capacity warning: %s", res.Warning.Message)
	}
	m.recordUtilization(res.Warning)
	if m.bus != nil {
		m.bus.Publish(events.AssignmentEvent{Assignment: a, Utilization: res.Warning.Utilization, OverCapacity: res.Warning.OverCapacity, Time: m.now()})
	}
	m.notifyCustomer(ctx, after.CustomerID, model.Notification{
		JobID:   after.ID,
		Title:   fmt.Sprintf("Delivery %s scheduled", after.ReferenceNumber),
		Message: fmt.Sprintf("Your delivery to %s is scheduled for %s (%s)", after.DeliveryLocation, a.Date.Format(time.DateOnly), slot),
		Type:    model.NotifyJobAssigned,
		Context: jobContext(after),
	})
	return res, nil
}

func (m *Machine) compensate(ctx context.Context, jobID string, prev model.Assignment, existed bool) {
	var err error
	if existed {
		_, _, err = m.assignments.Assign(ctx, prev)
	} else {
		err = m.assignments.Remove(ctx, jobID)
	}
	if err != nil {
		m.log.Errorf("restore assignment of %s: %v", jobID, err)
	}
}

// UnassignJob removes the job from its truck. A scheduled job returns to
// APPROVED.
func (m *Machine) UnassignJob(ctx context.Context, jobID, actor string) (model.Job, error) {
	before, after, _, err := m.update(ctx, jobID, func(j *model.Job) error {
		switch j.Status {
		case model.StatusApproved, model.StatusPendingApproval:
		case model.StatusScheduled:
			j.Status = model.StatusApproved
		default:
			return statusError(j.ID, j.Status, model.StatusApproved)
		}
		j.TruckID = ""
		j.TimeSlotID = ""
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}
	prev, aerr := m.assignments.Get(ctx, jobID)
	m.release(ctx, jobID)
	m.observe(ctx, before, after, actor, "unassigned")
	if aerr == nil {
		w, err := m.BucketCapacity(ctx, prev.TruckID, prev.Date, prev.TimeSlotID)
		if err == nil {
			m.recordUtilization(w)
		}
		if m.bus != nil {
			m.bus.Publish(events.AssignmentEvent{Assignment: prev, Removed: true, Utilization: w.Utilization, OverCapacity: w.OverCapacity, Time: m.now()})
		}
	}
	return after, nil
}

// BucketCapacity evaluates the load of a truck on a day and slot. Cancelled
// jobs and dangling assignments are ignored.
func (m *Machine) BucketCapacity(ctx context.Context, truckID string, date time.Time, slot string) (capacity.Warning, error) {
	truck, err := m.trucks.Truck(ctx, truckID)
	if err != nil {
		return capacity.Warning{}, err
	}
	slot = m.planner.Slots().Canonical(slot)
	as, err := m.assignments.ListBucket(ctx, truckID, date, slot)
	if err != nil {
		return capacity.Warning{}, err
	}
	weights := make(map[string]float64, len(as))
	for _, a := range as {
		j, err := m.jobs.Get(ctx, a.JobID)
		if err != nil {
			if errors.Is(mapJobErr(err, a.JobID), ErrJobNotFound) {
				continue
			}
			return capacity.Warning{}, err
		}
		if j.Status == model.StatusCancelled {
			continue
		}
		weights[j.ID] = j.WeightKg
	}
	return m.planner.Evaluate(truck, capacity.Bucket{TruckID: truckID, Date: date, TimeSlotID: slot}, weights), nil
}

func (m *Machine) recordUtilization(w capacity.Warning) {
	r, ok := m.sink.(coremetrics.UtilizationRecorder)
	if !ok || w.TruckID == "" {
		return
	}
	if err := r.RecordUtilization(coremetrics.UtilizationEvent{
		TruckID:       w.TruckID,
		Date:          w.Date,
		TimeSlotID:    w.TimeSlotID,
		TotalWeightKg: w.TotalWeightKg,
		Utilization:   w.Utilization,
		OverCapacity:  w.OverCapacity,
		Time:          m.now(),
	}); err != nil {
		m.log.Warnf("record utilization: %v", err)
	}
}
