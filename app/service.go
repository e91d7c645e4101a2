package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	dispatchapi "github.com/kilianp07/haulage/api/dispatch"
	jobsapi "github.com/kilianp07/haulage/api/jobs"
	"github.com/kilianp07/haulage/config"
	"github.com/kilianp07/haulage/core/capacity"
	"github.com/kilianp07/haulage/core/dispatch"
	"github.com/kilianp07/haulage/core/dispatch/audit"
	"github.com/kilianp07/haulage/core/fleet"
	coremetrics "github.com/kilianp07/haulage/core/metrics"
	coremon "github.com/kilianp07/haulage/core/monitoring"
	"github.com/kilianp07/haulage/core/notify"
	"github.com/kilianp07/haulage/core/reference"
	"github.com/kilianp07/haulage/infra/logger"
	"github.com/kilianp07/haulage/infra/metrics"
	"github.com/kilianp07/haulage/infra/monitoring"
	"github.com/kilianp07/haulage/infra/mqtt"
	"github.com/kilianp07/haulage/internal/eventbus"
)

// Service wires the dispatch machine to its stores, the notification
// outbox and the HTTP API.
type Service struct {
	Machine   *dispatch.Machine
	Allocator *reference.Allocator
	Outbox    *notify.Outbox
	Backend   *Backend
	Customers *reference.MemoryCustomers
	Trucks    *fleet.MemoryStore
	Users     *notify.MemoryDirectory

	relay   *mqtt.Relay
	audit   audit.Store
	sink    coremetrics.MetricsSink
	bus     *eventbus.Bus
	httpCfg config.HTTPConfig
	log     logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	slots := capacity.DefaultSlotTable()
	if cfg.Dispatch.SlotFile != "" {
		if slots, err = capacity.LoadSlotTable(cfg.Dispatch.SlotFile); err != nil {
			return nil, fmt.Errorf("slot table: %w", err)
		}
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	backend, err := OpenBackend(cfg.Store.Backend, cfg.Store.Counters)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		Backend:   backend,
		Customers: reference.NewMemoryCustomers(cfg.Seed.Customers...),
		Trucks:    fleet.NewMemoryStore(cfg.Seed.Trucks...),
		Users:     notify.NewMemoryDirectory(cfg.Seed.Users...),
		sink:      sink,
		bus:       eventbus.New(),
		httpCfg:   cfg.HTTP,
		log:       logg,
	}

	if svc.audit, err = audit.NewStore(cfg.Audit.Store()); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}

	sinks := notify.MultiSink{backend.Inbox}
	if cfg.MQTT.Enabled() {
		relay, err := mqtt.NewRelay(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			_ = svc.audit.Close()
			_ = backend.Close()
			return nil, fmt.Errorf("mqtt relay: %w", err)
		}
		relay.OnRead(func(ctx context.Context, r mqtt.ReadReceipt) error {
			return backend.Inbox.MarkRead(ctx, r.NotificationID)
		})
		svc.relay = relay
		sinks = append(sinks, relay)
	}
	svc.Outbox = notify.NewOutbox(sinks, cfg.Notify, logger.New("outbox"))
	svc.Outbox.SetBus(svc.bus)

	svc.Allocator = reference.NewAllocator(svc.Customers, backend.Counters)
	planner := capacity.NewPlanner(slots, cfg.Dispatch.WarningThreshold)
	svc.Machine = dispatch.NewMachine(cfg.Dispatch, backend.Jobs, backend.Assignments, svc.Trucks, svc.Allocator, planner, svc.Outbox, svc.Users, logger.New("dispatch"))
	svc.Machine.SetMetrics(sink)
	svc.Machine.SetBus(svc.bus)
	svc.Machine.SetAuditStore(svc.audit)
	return svc, nil
}

// Handler returns the HTTP API. Metrics are served on the same listener
// unless a dedicated metrics address is configured.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/dispatch/audit", dispatchapi.NewAuditHandler(dispatchapi.TrailFunc(s.Machine.AuditTrail), s.httpCfg.Token))
	mux.Handle("/api/", jobsapi.NewHandler(s.Machine, s.Backend.Inbox, logger.New("api")))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.httpCfg.MetricsAddr == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// Run starts the workers and the HTTP server and blocks until the context
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Outbox.Start(ctx)
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	srv := &http.Server{Addr: s.httpCfg.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	if s.httpCfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.StartPromServer(gctx, s.httpCfg.MetricsAddr); err != nil {
				return fmt.Errorf("prom server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		s.log.Infof("listening on %s", s.httpCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.httpCfg.ShutdownSeconds)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close drains the outbox and releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if err := s.Outbox.Close(); err != nil {
		errs = append(errs, fmt.Errorf("outbox: %w", err))
	}
	if s.relay != nil {
		s.relay.Disconnect()
	}
	s.bus.Close()
	if d := s.bus.Dropped(); d > 0 {
		s.log.Warnf("event bus dropped %d events for slow subscribers", d)
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}
	if err := s.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
