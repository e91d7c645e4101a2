package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/factory"
	"github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/notify"
	"github.com/kilianp07/haulage/core/reference"
	"github.com/kilianp07/haulage/infra/logger"
	"github.com/kilianp07/haulage/infra/store/postgres"
	redisstore "github.com/kilianp07/haulage/infra/store/redis"
	"github.com/kilianp07/haulage/infra/store/sqlite"
)

// Backend bundles the stores of one persistence backend.
type Backend struct {
	Jobs        jobs.Store
	Assignments assignment.Store
	Counters    reference.CounterStore
	Inbox       notify.Inbox

	closers []func() error
}

// Close releases every resource opened for the backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	backendRegistry = factory.NewRegistry[*Backend]()
	counterRegistry = factory.NewRegistry[reference.CounterStore]()
)

// RegisterBackend adds a store backend factory identified by name.
func RegisterBackend(name string, f factory.Factory[*Backend]) error {
	return backendRegistry.Register(name, f)
}

// RegisterCounterStore adds a counter store factory identified by name.
func RegisterCounterStore(name string, f factory.Factory[reference.CounterStore]) error {
	return counterRegistry.Register(name, f)
}

// OpenBackend creates the configured backend. counters, when non nil,
// replaces the backend's counter store; its closer is registered on the
// returned backend.
func OpenBackend(cfg factory.ModuleConfig, counters *factory.ModuleConfig) (*Backend, error) {
	b, err := backendRegistry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("store backend %s: %w", cfg.Type, err)
	}
	if counters == nil {
		return b, nil
	}
	cs, err := counterRegistry.Create(*counters)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("counter store %s: %w", counters.Type, err)
	}
	b.Counters = cs
	if c, ok := cs.(interface{ Close() error }); ok {
		b.closers = append(b.closers, c.Close)
	}
	return b, nil
}

func init() {
	_ = RegisterBackend("memory", func(map[string]any) (*Backend, error) {
		return &Backend{
			Jobs:        jobs.NewMemoryStore(),
			Assignments: assignment.NewMemoryStore(),
			Counters:    reference.NewMemoryCounterStore(),
			Inbox:       &notify.MemorySink{},
		}, nil
	})

	_ = RegisterBackend("sqlite", func(conf map[string]any) (*Backend, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "haulage.db"
		}
		db, err := sqlite.Open(c.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Jobs:        db.Jobs(),
			Assignments: db.Assignments(),
			Counters:    db.Counters(),
			Inbox:       db.Notifications(),
			closers:     []func() error{db.Close},
		}, nil
	})

	_ = RegisterBackend("postgres", func(conf map[string]any) (*Backend, error) {
		var c struct {
			DSN         string `json:"dsn"`
			SkipMigrate bool   `json:"skip_migrate"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires dsn")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, err := postgres.New(ctx, c.DSN, logger.New("postgres"))
		if err != nil {
			return nil, err
		}
		if !c.SkipMigrate {
			if err := st.Migrate(ctx); err != nil {
				_ = st.Close()
				return nil, err
			}
		}
		return &Backend{
			Jobs:        st.Jobs(),
			Assignments: st.Assignments(),
			Counters:    st.Counters(),
			Inbox:       st.Notifications(),
			closers:     []func() error{st.Close},
		}, nil
	})

	_ = RegisterCounterStore("redis", func(conf map[string]any) (reference.CounterStore, error) {
		var c redisstore.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		c.SetDefaults()
		cli, err := redisstore.NewClient(c)
		if err != nil {
			return nil, err
		}
		return &closingCounters{CounterStore: redisstore.New(cli, c.Prefix), close: cli.Close}, nil
	})
}

// closingCounters ties a counter store to the client it owns.
type closingCounters struct {
	*redisstore.CounterStore
	close func() error
}

func (c *closingCounters) Close() error { return c.close() }
