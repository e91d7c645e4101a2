package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/haulage/core/events"
	"github.com/kilianp07/haulage/core/logger"
	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/monitoring"
	"github.com/kilianp07/haulage/internal/eventbus"
)

var ErrOutboxClosed = errors.New("notify: outbox closed")

// Config tunes the outbox workers.
type Config struct {
	Workers     int `json:"workers"`
	QueueSize   int `json:"queue_size"`
	MaxAttempts int `json:"max_attempts"`
	BackoffMS   int `json:"backoff_ms"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 200
	}
}

// Outbox queues notifications and delivers them from a pool of workers.
type Outbox struct {
	sink     Sink
	cfg      Config
	log      logger.Logger
	bus      eventbus.EventBus
	recorder coremetrics.NotificationRecorder
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan model.Notification
	group   *errgroup.Group

	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewOutbox returns an outbox delivering to sink. Start must be called for
// deliveries to happen.
func NewOutbox(sink Sink, cfg Config, log logger.Logger) *Outbox {
	cfg.SetDefaults()
	return &Outbox{
		sink:  sink,
		cfg:   cfg,
		log:   logger.OrNop(log),
		now:   time.Now,
		queue: make(chan model.Notification, cfg.QueueSize),
	}
}

// SetBus publishes a NotificationEvent for each final delivery outcome.
func (o *Outbox) SetBus(b eventbus.EventBus) { o.bus = b }

// SetRecorder records delivery outcomes.
func (o *Outbox) SetRecorder(r coremetrics.NotificationRecorder) { o.recorder = r }

// Start launches the workers. Calling Start twice has no effect.
func (o *Outbox) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.closed {
		return
	}
	o.started = true
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error {
			defer monitoring.Recover()
			for n := range o.queue {
				o.deliver(gctx, n)
			}
			return nil
		})
	}
	o.group = g
}

// Enqueue queues n without blocking. A full queue drops the notification.
func (o *Outbox) Enqueue(n model.Notification) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = o.now().UTC()
	}
	select {
	case o.queue <- n:
		return nil
	default:
		o.dropped.Add(1)
		o.log.Warnf("notification queue full, dropping %s for %s", n.Type, n.UserID)
		return fmt.Errorf("notify: queue full")
	}
}

// Fanout enqueues a copy of tmpl for every user and returns how many were
// queued.
func (o *Outbox) Fanout(users []model.User, tmpl model.Notification) int {
	queued := 0
	for _, u := range users {
		n := tmpl
		n.ID = ""
		n.UserID = u.ID
		if tmpl.Context != nil {
			n.Context = make(map[string]string, len(tmpl.Context))
			for k, v := range tmpl.Context {
				n.Context[k] = v
			}
		}
		if err := o.Enqueue(n); err == nil {
			queued++
		}
	}
	return queued
}

// Close stops accepting notifications and waits for queued ones to be
// delivered.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	g := o.group
	started := o.started
	o.mu.Unlock()
	if !started {
		for n := range o.queue {
			o.deliver(context.Background(), n)
		}
		return nil
	}
	return g.Wait()
}

// Stats returns delivered, failed and dropped counts.
func (o *Outbox) Stats() (delivered, failed, dropped int64) {
	return o.delivered.Load(), o.failed.Load(), o.dropped.Load()
}

func (o *Outbox) deliver(ctx context.Context, n model.Notification) {
	backoff := time.Duration(o.cfg.BackoffMS) * time.Millisecond
	var err error
	attempts := 0
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		attempts++
		if err = o.sink.Deliver(ctx, n); err == nil {
			break
		}
		o.log.Warnf("deliver notification %s to %s attempt %d failed: %v", n.ID, n.UserID, attempts, err)
		if attempt == o.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff * (1 << attempt)):
			continue
		case <-ctx.Done():
			err = ctx.Err()
		}
		break
	}
	if err == nil {
		o.delivered.Add(1)
	} else {
		o.failed.Add(1)
		o.log.Errorf("notification %s to %s dropped after %d attempts: %v", n.ID, n.UserID, attempts, err)
		monitoring.CaptureException(err, map[string]string{"component": "notify", "type": string(n.Type), "user_id": n.UserID})
	}
	if o.recorder != nil {
		_ = o.recorder.RecordNotification(coremetrics.NotificationDeliveryEvent{
			Type:      string(n.Type),
			UserID:    n.UserID,
			Attempts:  attempts,
			Delivered: err == nil,
			Time:      o.now(),
		})
	}
	if o.bus != nil {
		o.bus.Publish(events.NotificationEvent{Notification: n, Attempts: attempts, Delivered: err == nil, Err: err})
	}
}
