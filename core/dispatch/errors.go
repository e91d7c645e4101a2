package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/haulage/core/model"
)

var (
	ErrJobNotFound       = errors.New("dispatch: job not found")
	ErrInvalidTransition = errors.New("dispatch: invalid transition")
	ErrInvalidJob        = errors.New("dispatch: invalid job")
	ErrInvalidBulkAction = errors.New("dispatch: invalid bulk action")
	ErrConcurrentUpdate  = errors.New("dispatch: too many concurrent updates")
	ErrNoProblemReported = errors.New("dispatch: driver has not reported a problem")
	ErrNotAssignable     = errors.New("dispatch: job cannot be assigned in its current status")
	errNoChange          = errors.New("no change")
)

// TransitionError describes a rejected move between two states.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("dispatch: job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func statusError(jobID string, from, to model.JobStatus) error {
	return &TransitionError{JobID: jobID, From: string(from), To: string(to)}
}

func driverError(jobID string, from, to model.DriverStatus) error {
	return &TransitionError{JobID: jobID, From: string(from), To: string(to)}
}
