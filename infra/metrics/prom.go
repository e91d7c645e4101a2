package metrics

import (
	"strconv"

	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	transitions   *prometheus.CounterVec
	utilization   *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	attempts      *prometheus.HistogramVec
	assignments   *prometheus.CounterVec
}

// NewPromSink registers sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulage_transitions_total",
		Help: "Accepted job and driver status transitions",
	}, []string{"kind", "from", "to"})
	utilization := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "haulage_bucket_utilization_ratio",
		Help: "Weight over capacity for the last evaluated truck bucket",
	}, []string{"truck_id", "time_slot"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulage_notifications_total",
		Help: "Notification deliveries by type and outcome",
	}, []string{"type", "delivered"})
	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "haulage_notification_attempts",
		Help:    "Delivery attempts needed per notification",
		Buckets: []float64{1, 2, 3, 5, 8},
	}, []string{"type"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulage_assignment_changes_total",
		Help: "Assignment changes by action and capacity state",
	}, []string{"action", "over_capacity"})

	var err error
	if transitions, err = register(reg, transitions); err != nil {
		return nil, err
	}
	if utilization, err = register(reg, utilization); err != nil {
		return nil, err
	}
	if notifications, err = register(reg, notifications); err != nil {
		return nil, err
	}
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if assignments, err = register(reg, assignments); err != nil {
		return nil, err
	}
	return &PromSink{
		transitions:   transitions,
		utilization:   utilization,
		notifications: notifications,
		attempts:      attempts,
		assignments:   assignments,
	}, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Kind, ev.From, ev.To).Inc()
	return nil
}

func (s *PromSink) RecordUtilization(ev coremetrics.UtilizationEvent) error {
	s.utilization.WithLabelValues(ev.TruckID, ev.TimeSlotID).Set(ev.Utilization)
	return nil
}

func (s *PromSink) RecordNotification(ev coremetrics.NotificationDeliveryEvent) error {
	s.notifications.WithLabelValues(ev.Type, strconv.FormatBool(ev.Delivered)).Inc()
	s.attempts.WithLabelValues(ev.Type).Observe(float64(ev.Attempts))
	return nil
}

func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentChangeEvent) error {
	action := "assign"
	if ev.Removed {
		action = "unassign"
	}
	s.assignments.WithLabelValues(action, strconv.FormatBool(ev.OverCapacity)).Inc()
	return nil
}
