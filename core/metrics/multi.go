package metrics

import "errors"

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTransition forwards the event to all sinks and joins their errors.
func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordTransition(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordUtilization forwards to sinks implementing UtilizationRecorder.
func (m *MultiSink) RecordUtilization(ev UtilizationEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(UtilizationRecorder); ok {
			if err := r.RecordUtilization(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordNotification forwards to sinks implementing NotificationRecorder.
func (m *MultiSink) RecordNotification(ev NotificationDeliveryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(NotificationRecorder); ok {
			if err := r.RecordNotification(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordAssignment forwards to sinks implementing AssignmentRecorder.
func (m *MultiSink) RecordAssignment(ev AssignmentChangeEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AssignmentRecorder); ok {
			if err := r.RecordAssignment(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
