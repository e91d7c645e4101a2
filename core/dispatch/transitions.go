package dispatch

import (
	"fmt"

	"github.com/kilianp07/haulage/core/model"
)

// Event moves a job between statuses.
type Event string

const (
	EventApprove    Event = "approve"
	EventSchedule   Event = "schedule"
	EventUnschedule Event = "unschedule"
	EventDepart     Event = "depart"
	EventDeliver    Event = "deliver"
	EventReturn     Event = "return"
	EventCancel     Event = "cancel"
)

// statusTable is the complete set of accepted (status, event) pairs.
var statusTable = map[model.JobStatus]map[Event]model.JobStatus{
	model.StatusPendingApproval: {
		EventApprove: model.StatusApproved,
		EventCancel:  model.StatusCancelled,
	},
	model.StatusApproved: {
		EventSchedule: model.StatusScheduled,
		EventCancel:   model.StatusCancelled,
	},
	model.StatusScheduled: {
		EventDepart:     model.StatusInTransit,
		EventUnschedule: model.StatusApproved,
		EventCancel:     model.StatusCancelled,
	},
	model.StatusInTransit: {
		EventDeliver: model.StatusDelivered,
		EventReturn:  model.StatusReturned,
		EventCancel:  model.StatusCancelled,
	},
}

// eventOrder keeps Plan deterministic.
var eventOrder = []Event{EventApprove, EventSchedule, EventUnschedule, EventDepart, EventDeliver, EventReturn, EventCancel}

// Next applies ev to from.
func Next(from model.JobStatus, ev Event) (model.JobStatus, error) {
	if to, ok := statusTable[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s does not accept %s", ErrInvalidTransition, from, ev)
}

// Plan returns the shortest event sequence moving a job from one status to
// another. Approval and unscheduling are only used when the target is
// APPROVED, so dispatch actions never approve a pending job implicitly. An
// empty plan means the job is already in the target status.
func Plan(from, to model.JobStatus) ([]Event, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil, nil
	}
	allow := func(ev Event) bool {
		if ev == EventApprove || ev == EventUnschedule {
			return to == model.StatusApproved
		}
		return true
	}
	type step struct {
		status model.JobStatus
		path   []Event
	}
	seen := map[model.JobStatus]bool{from: true}
	queue := []step{{status: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ev := range eventOrder {
			next, ok := statusTable[cur.status][ev]
			if !ok || !allow(ev) || seen[next] {
				continue
			}
			path := append(append([]Event(nil), cur.path...), ev)
			if next == to {
				return path, nil
			}
			seen[next] = true
			queue = append(queue, step{status: next, path: path})
		}
	}
	return nil, statusError("", from, to)
}

// CheckDriverMove validates a driver status change. The happy path only
// moves forward, though steps may be skipped and repeats are accepted.
// PROBLEM can be raised from any unfinished status and the driver may
// resume to any status from it.
func CheckDriverMove(from, to model.DriverStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown driver status %q", ErrInvalidTransition, to)
	}
	switch {
	case from == to:
		return nil
	case from == model.DriverCompleted:
		return driverError("", from, to)
	case to == model.DriverProblem, from == model.DriverProblem, from == "":
		return nil
	case to.Rank() < from.Rank():
		return driverError("", from, to)
	}
	return nil
}

// driverUpdatable reports whether the job status accepts driver updates.
func driverUpdatable(j model.Job, to model.DriverStatus) bool {
	switch j.Status {
	case model.StatusScheduled, model.StatusInTransit:
		return true
	case model.StatusDelivered:
		return to == model.DriverCompleted
	}
	return false
}
