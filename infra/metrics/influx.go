package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/kilianp07/haulage/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordTransition writes one job_transition point.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("job_transition").
		AddTag("kind", ev.Kind).
		AddTag("from", orNone(ev.From)).
		AddTag("to", ev.To).
		AddTag("job_id", ev.JobID).
		AddField("reference", ev.Reference).
		AddField("actor", ev.Actor).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordUtilization writes the load of a bucket.
func (s *InfluxSink) RecordUtilization(ev coremetrics.UtilizationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bucket_utilization").
		AddTag("truck_id", ev.TruckID).
		AddTag("time_slot", ev.TimeSlotID).
		AddTag("date", ev.Date.Format(time.DateOnly)).
		AddField("weight_kg", round3(ev.TotalWeightKg)).
		AddField("utilization", round3(ev.Utilization)).
		AddField("over_capacity", ev.OverCapacity).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordNotification writes a delivery outcome.
func (s *InfluxSink) RecordNotification(ev coremetrics.NotificationDeliveryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("notification_delivery").
		AddTag("type", ev.Type).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("attempts", ev.Attempts).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes an assignment change.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentChangeEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("assignment_change").
		AddTag("truck_id", ev.TruckID).
		AddTag("time_slot", ev.TimeSlotID).
		AddTag("removed", strconv.FormatBool(ev.Removed)).
		AddField("job_id", ev.JobID).
		AddField("over_capacity", ev.OverCapacity).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// orNone keeps empty tag values out of line protocol, which rejects them.
func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
