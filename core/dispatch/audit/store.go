// Package audit keeps an append-only trail of accepted job transitions.
package audit

import (
	"context"
	"fmt"
	"time"
)

// Record is a single accepted transition.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Reference string    `json:"reference"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
}

// Query filters records. Zero values match everything.
type Query struct {
	Start time.Time
	End   time.Time
	JobID string
	Kind  string
	Limit int
}

// Match reports whether r satisfies q, ignoring Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.JobID != "" && r.JobID != q.JobID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

// Config selects and tunes the audit backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// NewStore builds the configured backend. An empty backend disables auditing.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return NopStore{}, nil
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unknown audit backend %s", cfg.Backend)
}

func limit(res []Record, n int) []Record {
	if n > 0 && len(res) > n {
		return res[len(res)-n:]
	}
	return res
}
