package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/haulage/core/metrics"
)

func newInfluxServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, strings.TrimSpace(string(b)))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

func TestInfluxSink_RecordTransition(t *testing.T) {
	srv, bodies := newInfluxServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.TransitionEvent{
		JobID: "j1", Reference: "241001", Kind: coremetrics.KindStatus,
		To: "PENDING_APPROVAL", Actor: "u1", Time: now,
	}
	if err := sink.RecordTransition(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("job_transition").
		AddTag("kind", "status").
		AddTag("from", "none").
		AddTag("to", "PENDING_APPROVAL").
		AddTag("job_id", "j1").
		AddField("reference", "241001").
		AddField("actor", "u1").
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := bodies(); len(got) != 1 || got[0] != exp {
		t.Errorf("bodies: %#v", got)
	}
}

func TestInfluxSink_RecordUtilization(t *testing.T) {
	srv, bodies := newInfluxServer(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ev := coremetrics.UtilizationEvent{
		TruckID: "t1", Date: day, TimeSlotID: "first-am",
		TotalWeightKg: 11000, Utilization: 1.1, OverCapacity: true, Time: now,
	}
	if err := sink.RecordUtilization(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("bucket_utilization").
		AddTag("truck_id", "t1").
		AddTag("time_slot", "first-am").
		AddTag("date", "2024-06-10").
		AddField("weight_kg", 11000.0).
		AddField("utilization", 1.1).
		AddField("over_capacity", true).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := bodies(); len(got) != 1 || got[0] != exp {
		t.Errorf("bodies: %#v", got)
	}
}

func TestInfluxSink_RecordNotification(t *testing.T) {
	srv, bodies := newInfluxServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.NotificationDeliveryEvent{Type: "driver_status", UserID: "u1", Attempts: 2, Delivered: true, Time: now}
	if err := sink.RecordNotification(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("notification_delivery").
		AddTag("type", "driver_status").
		AddTag("delivered", "true").
		AddField("attempts", 2).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := bodies(); len(got) != 1 || got[0] != exp {
		t.Errorf("bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
