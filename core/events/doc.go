// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - JobEvent: job status transition
//   - DriverStatusEvent: driver progress update
//   - AssignmentEvent: truck/slot assignment change with capacity warning
//   - NotificationEvent: outcome of a notification delivery
package events
