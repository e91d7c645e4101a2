package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/haulage/core/model"
)

// JobRequest is the intake form for a new job.
type JobRequest struct {
	CustomerID       string    `json:"customerId"`
	CustomerName     string    `json:"customerName"`
	DeliveryLocation string    `json:"deliveryLocation"`
	WeightKg         float64   `json:"weightKg"`
	Sqm              float64   `json:"sqm"`
	TotalUnits       int       `json:"totalUnits"`
	RequestedDate    time.Time `json:"requestedDate"`
	TimeSlotID       string    `json:"timeSlotId,omitempty"`
	Actor            string    `json:"actor"`
}

// Validate checks the request fields.
func (r JobRequest) Validate() error {
	var problems []string
	if r.CustomerID == "" {
		problems = append(problems, "customer id is required")
	}
	if strings.TrimSpace(r.DeliveryLocation) == "" {
		problems = append(problems, "delivery location is required")
	}
	if r.WeightKg < 0 || r.Sqm < 0 || r.TotalUnits < 0 {
		problems = append(problems, "weight, area and units must not be negative")
	}
	if r.RequestedDate.IsZero() {
		problems = append(problems, "requested date is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(problems, "; "))
	}
	return nil
}

// CreateJob allocates a reference number and persists a job awaiting
// approval.
func (m *Machine) CreateJob(ctx context.Context, req JobRequest) (model.Job, error) {
	if err := req.Validate(); err != nil {
		return model.Job{}, err
	}
	ref, err := m.allocator.Allocate(ctx, req.CustomerID)
	if err != nil {
		referenceAllocations.WithLabelValues("error").Inc()
		return model.Job{}, err
	}
	referenceAllocations.WithLabelValues("ok").Inc()

	ts := m.now().UTC()
	j := model.Job{
		ID:               uuid.NewString(),
		CustomerID:       req.CustomerID,
		CustomerName:     req.CustomerName,
		ReferenceNumber:  ref,
		Status:           model.StatusPendingApproval,
		DriverStatus:     model.DriverNotStarted,
		DeliveryLocation: req.DeliveryLocation,
		WeightKg:         req.WeightKg,
		Sqm:              req.Sqm,
		TotalUnits:       req.TotalUnits,
		RequestedDate:    req.RequestedDate,
		TimeSlotID:       m.planner.Slots().Canonical(req.TimeSlotID),
		Version:          1,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	if err := m.jobs.Create(ctx, j); err != nil {
		return model.Job{}, fmt.Errorf("persist job %s: %w", ref, err)
	}
	m.log.Infof("job %s created for customer %s", ref, req.CustomerID)
	m.observe(ctx, model.Job{}, j, req.Actor, "created")

	m.notifyDispatchers(ctx, model.Notification{
		JobID:   j.ID,
		Title:   "New job request",
		Message: fmt.Sprintf("%s requested delivery %s to %s", nameOr(req.CustomerName, req.CustomerID), ref, j.DeliveryLocation),
		Type:    model.NotifyJobCreated,
		Context: jobContext(j),
	})
	return j, nil
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
