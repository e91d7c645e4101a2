package model

import "fmt"

// JobStatus is the coarse lifecycle state of a job.
type JobStatus string

const (
	StatusPendingApproval JobStatus = "PENDING_APPROVAL"
	StatusApproved        JobStatus = "APPROVED"
	StatusScheduled       JobStatus = "SCHEDULED"
	StatusInTransit       JobStatus = "IN_TRANSIT"
	StatusDelivered       JobStatus = "DELIVERED"
	StatusReturned        JobStatus = "RETURNED"
	StatusCancelled       JobStatus = "CANCELLED"
)

var jobStatuses = []JobStatus{
	StatusPendingApproval,
	StatusApproved,
	StatusScheduled,
	StatusInTransit,
	StatusDelivered,
	StatusReturned,
	StatusCancelled,
}

// JobStatuses returns every known job status in lifecycle order.
func JobStatuses() []JobStatus {
	out := make([]JobStatus, len(jobStatuses))
	copy(out, jobStatuses)
	return out
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	for _, v := range jobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned || s == StatusCancelled
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(v string) (JobStatus, error) {
	s := JobStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job status %q", v)
	}
	return s, nil
}

// DriverStatus is the fine-grained progress reported by the driver app.
type DriverStatus string

const (
	DriverNotStarted DriverStatus = "NOT_STARTED"
	DriverEnRoute    DriverStatus = "EN_ROUTE"
	DriverArrived    DriverStatus = "ARRIVED"
	DriverUnloading  DriverStatus = "UNLOADING"
	DriverCompleted  DriverStatus = "COMPLETED"
	DriverProblem    DriverStatus = "PROBLEM"
)

var driverRank = map[DriverStatus]int{
	DriverNotStarted: 0,
	DriverEnRoute:    1,
	DriverArrived:    2,
	DriverUnloading:  3,
	DriverCompleted:  4,
}

// Valid reports whether d is a known driver status.
func (d DriverStatus) Valid() bool {
	if d == DriverProblem {
		return true
	}
	_, ok := driverRank[d]
	return ok
}

// Rank returns the position of d on the happy path. PROBLEM has no rank and
// returns -1.
func (d DriverStatus) Rank() int {
	if r, ok := driverRank[d]; ok {
		return r
	}
	return -1
}

// ParseDriverStatus converts a string into a DriverStatus.
func ParseDriverStatus(v string) (DriverStatus, error) {
	d := DriverStatus(v)
	if !d.Valid() {
		return "", fmt.Errorf("unknown driver status %q", v)
	}
	return d, nil
}
