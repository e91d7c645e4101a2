// Package metrics defines interfaces for recording dispatch activity. Sinks
// like PromSink and InfluxSink record job transitions, bucket utilization
// and notification deliveries, and can be combined with NewMultiSink. The
// factory helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
