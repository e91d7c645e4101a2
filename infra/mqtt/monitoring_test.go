package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kilianp07/haulage/core/model"
	coremon "github.com/kilianp07/haulage/core/monitoring"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any)    {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestDeliverErrorCaptured(t *testing.T) {
	useMockClient(t, &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}})
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	r, err := NewRelay(cfg, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	err = r.Deliver(context.Background(), model.Notification{ID: "n1", UserID: "u1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["user_id"] != "u1" || mon.tags["module"] != "mqtt" || mon.tags["notification_id"] != "n1" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}
