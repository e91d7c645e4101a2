package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/haulage/core/events"
	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/kilianp07/haulage/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records assignment and
// notification events on sinks implementing the matching recorder.
// Transitions and utilization are recorded by the dispatch machine directly.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(sink, ev)
			}
		}
	}()
}

func collect(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.AssignmentEvent:
		if r, ok := sink.(coremetrics.AssignmentRecorder); ok {
			_ = r.RecordAssignment(coremetrics.AssignmentChangeEvent{
				JobID:        e.Assignment.JobID,
				TruckID:      e.Assignment.TruckID,
				TimeSlotID:   e.Assignment.TimeSlotID,
				Date:         e.Assignment.Date,
				Removed:      e.Removed,
				OverCapacity: e.OverCapacity,
				Time:         e.Time,
			})
		}
	case events.NotificationEvent:
		if r, ok := sink.(coremetrics.NotificationRecorder); ok {
			ts := e.Notification.CreatedAt
			if ts.IsZero() {
				ts = time.Now()
			}
			_ = r.RecordNotification(coremetrics.NotificationDeliveryEvent{
				Type:      string(e.Notification.Type),
				UserID:    e.Notification.UserID,
				Attempts:  e.Attempts,
				Delivered: e.Delivered,
				Time:      ts,
			})
		}
	}
}
