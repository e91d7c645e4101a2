package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	base := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	return []Record{
		{Timestamp: base, JobID: "j1", Kind: "status", From: "APPROVED", To: "SCHEDULED", Actor: "disp"},
		{Timestamp: base.Add(time.Hour), JobID: "j1", Kind: "driver_status", From: "NOT_STARTED", To: "EN_ROUTE", Actor: "drv"},
		{Timestamp: base.Add(2 * time.Hour), JobID: "j2", Kind: "status", From: "SCHEDULED", To: "CANCELLED", Actor: "disp"},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sampleRecords() {
		require.NoError(t, s.Append(ctx, r))
	}
	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	j1, err := s.Query(ctx, Query{JobID: "j1"})
	require.NoError(t, err)
	assert.Len(t, j1, 2)

	st, err := s.Query(ctx, Query{Kind: "status", Start: sampleRecords()[1].Timestamp})
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, "j2", st[0].JobID)

	last, err := s.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "CANCELLED", last[0].To)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	big := Record{Timestamp: time.Now(), Note: strings.Repeat("x", 300*1024)}
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(context.Background(), big))
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "audit*.jsonl"))
	assert.Greater(t, len(files), 1)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	s, err = NewStore(Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "a.jsonl"), MaxSizeMB: 5})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, s)

	_, err = NewStore(Config{Backend: "kafka"})
	assert.Error(t, err)
}
