// Package dispatch implements the job lifecycle: creation with a reference
// number, status and driver status transitions, proof of delivery, bulk
// dispatcher actions and truck assignment with capacity warnings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/capacity"
	"github.com/kilianp07/haulage/core/dispatch/audit"
	"github.com/kilianp07/haulage/core/events"
	"github.com/kilianp07/haulage/core/fleet"
	"github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/logger"
	coremetrics "github.com/kilianp07/haulage/core/metrics"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/monitoring"
	"github.com/kilianp07/haulage/core/notify"
	"github.com/kilianp07/haulage/internal/eventbus"
)

// Config tunes the state machine.
type Config struct {
	WarningThreshold float64 `json:"warning_threshold"`
	BulkConcurrency  int     `json:"bulk_concurrency"`
	UpdateRetries    int     `json:"update_retries"`
	SlotFile         string  `json:"slot_file"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.WarningThreshold == 0 {
		c.WarningThreshold = capacity.DefaultWarningThreshold
	}
	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = 8
	}
	if c.UpdateRetries <= 0 {
		c.UpdateRetries = 5
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WarningThreshold <= 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("dispatch.warning_threshold must be in (0,1]")
	}
	return nil
}

// ReferenceAllocator issues job reference numbers.
type ReferenceAllocator interface {
	Allocate(ctx context.Context, customerID string) (string, error)
}

// Notifier queues notifications for a set of users.
type Notifier interface {
	Fanout(users []model.User, tmpl model.Notification) int
}

// Machine validates and applies job transitions.
type Machine struct {
	cfg         Config
	jobs        jobs.Store
	assignments assignment.Store
	trucks      fleet.Directory
	allocator   ReferenceAllocator
	planner     *capacity.Planner
	notifier    Notifier
	users       notify.Directory
	log         logger.Logger

	sink  coremetrics.MetricsSink
	bus   eventbus.EventBus
	audit audit.Store
	now   func() time.Time
}

// NewMachine wires the state machine. notifier and users may be nil to
// disable notifications.
func NewMachine(cfg Config, js jobs.Store, as assignment.Store, trucks fleet.Directory, alloc ReferenceAllocator, planner *capacity.Planner, notifier Notifier, users notify.Directory, log logger.Logger) *Machine {
	cfg.SetDefaults()
	if planner == nil {
		planner = capacity.NewPlanner(capacity.DefaultSlotTable(), cfg.WarningThreshold)
	}
	return &Machine{
		cfg:         cfg,
		jobs:        js,
		assignments: as,
		trucks:      trucks,
		allocator:   alloc,
		planner:     planner,
		notifier:    notifier,
		users:       users,
		log:         logger.OrNop(log),
		sink:        coremetrics.NopSink{},
		audit:       audit.NopStore{},
		now:         time.Now,
	}
}

// SetMetrics records transitions to sink.
func (m *Machine) SetMetrics(sink coremetrics.MetricsSink) {
	if sink != nil {
		m.sink = sink
	}
}

// SetBus publishes lifecycle events on b.
func (m *Machine) SetBus(b eventbus.EventBus) { m.bus = b }

// SetAuditStore appends every accepted transition to s.
func (m *Machine) SetAuditStore(s audit.Store) {
	if s != nil {
		m.audit = s
	}
}

// SetClock overrides the time source.
func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Planner returns the capacity planner in use.
func (m *Machine) Planner() *capacity.Planner { return m.planner }

// Job returns a job by id.
func (m *Machine) Job(ctx context.Context, id string) (model.Job, error) {
	j, err := m.jobs.Get(ctx, id)
	if err != nil {
		return model.Job{}, mapJobErr(err, id)
	}
	return j, nil
}

// Jobs lists jobs matching f.
func (m *Machine) Jobs(ctx context.Context, f jobs.Filter) ([]model.Job, error) {
	return m.jobs.List(ctx, f)
}

// AuditTrail returns recorded transitions.
func (m *Machine) AuditTrail(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	return m.audit.Query(ctx, q)
}

func mapJobErr(err error, id string) error {
	if errors.Is(err, jobs.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return err
}

// update runs a read-modify-write cycle on a job guarded by its version.
// fn may return errNoChange to leave the job untouched; changed is then
// false and err nil.
func (m *Machine) update(ctx context.Context, id string, fn func(j *model.Job) error) (before, after model.Job, changed bool, err error) {
	for attempt := 0; attempt <= m.cfg.UpdateRetries; attempt++ {
		cur, err := m.jobs.Get(ctx, id)
		if err != nil {
			return model.Job{}, model.Job{}, false, mapJobErr(err, id)
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, errNoChange) {
				return cur, cur, false, nil
			}
			return cur, cur, false, err
		}
		next.UpdatedAt = m.now().UTC()
		saved, err := m.jobs.Update(ctx, next, cur.Version)
		if err == nil {
			return cur, saved, true, nil
		}
		if !errors.Is(err, jobs.ErrVersionConflict) {
			monitoring.CaptureException(err, map[string]string{"component": "dispatch", "job_id": id})
			return cur, cur, false, mapJobErr(err, id)
		}
		versionConflicts.Inc()
		m.log.Debugf("version conflict on job %s, retry %d", id, attempt+1)
	}
	return model.Job{}, model.Job{}, false, fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
}

// observe records status and driver status changes between two versions of
// a job.
func (m *Machine) observe(ctx context.Context, before, after model.Job, actor, note string) {
	ts := m.now().UTC()
	if before.Status != after.Status {
		jobTransitions.WithLabelValues(string(before.Status), string(after.Status)).Inc()
		m.record(ctx, coremetrics.TransitionEvent{
			JobID: after.ID, Reference: after.ReferenceNumber, Kind: coremetrics.KindStatus,
			From: string(before.Status), To: string(after.Status), Actor: actor, Time: ts,
		}, note)
		if m.bus != nil {
			m.bus.Publish(events.JobEvent{JobID: after.ID, Reference: after.ReferenceNumber, From: before.Status, To: after.Status, Actor: actor, Time: ts})
		}
	}
	if before.DriverStatus != after.DriverStatus {
		m.record(ctx, coremetrics.TransitionEvent{
			JobID: after.ID, Reference: after.ReferenceNumber, Kind: coremetrics.KindDriver,
			From: string(before.DriverStatus), To: string(after.DriverStatus), Actor: actor, Time: ts,
		}, note)
		if m.bus != nil {
			m.bus.Publish(events.DriverStatusEvent{JobID: after.ID, Reference: after.ReferenceNumber, From: before.DriverStatus, To: after.DriverStatus, Actor: actor, Time: ts})
		}
	}
}

func (m *Machine) record(ctx context.Context, ev coremetrics.TransitionEvent, note string) {
	if err := m.sink.RecordTransition(ev); err != nil {
		m.log.Warnf("record transition for %s: %v", ev.JobID, err)
	}
	rec := audit.Record{
		Timestamp: ev.Time, JobID: ev.JobID, Reference: ev.Reference, Kind: ev.Kind,
		From: ev.From, To: ev.To, Actor: ev.Actor, Note: note,
	}
	if err := m.audit.Append(ctx, rec); err != nil {
		m.log.Errorf("append audit record for %s: %v", ev.JobID, err)
		monitoring.CaptureException(err, map[string]string{"component": "audit", "job_id": ev.JobID})
	}
}
