package metrics

import "time"

// Transition kinds.
const (
	KindStatus = "status"
	KindDriver = "driver_status"
)

// TransitionEvent is an accepted job or driver status change.
type TransitionEvent struct {
	JobID     string
	Reference string
	Kind      string
	From      string
	To        string
	Actor     string
	Time      time.Time
}

// MetricsSink records dispatch transitions for observability purposes.
type MetricsSink interface {
	RecordTransition(ev TransitionEvent) error
}

// UtilizationEvent is the load of a truck bucket after an assignment change.
type UtilizationEvent struct {
	TruckID       string
	Date          time.Time
	TimeSlotID    string
	TotalWeightKg float64
	Utilization   float64
	OverCapacity  bool
	Time          time.Time
}

// UtilizationRecorder records bucket utilization.
type UtilizationRecorder interface {
	RecordUtilization(ev UtilizationEvent) error
}

// NotificationDeliveryEvent is the outcome of one notification delivery.
type NotificationDeliveryEvent struct {
	Type      string
	UserID    string
	Attempts  int
	Delivered bool
	Time      time.Time
}

// NotificationRecorder records notification deliveries.
type NotificationRecorder interface {
	RecordNotification(ev NotificationDeliveryEvent) error
}

// AssignmentChangeEvent is a job being placed on or removed from a truck.
type AssignmentChangeEvent struct {
	JobID        string
	TruckID      string
	TimeSlotID   string
	Date         time.Time
	Removed      bool
	OverCapacity bool
	Time         time.Time
}

// AssignmentRecorder records assignment changes.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentChangeEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTransition(TransitionEvent) error             { return nil }
func (NopSink) RecordUtilization(UtilizationEvent) error           { return nil }
func (NopSink) RecordNotification(NotificationDeliveryEvent) error { return nil }
func (NopSink) RecordAssignment(AssignmentChangeEvent) error       { return nil }
