package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulage/core/model"
)

func TestMemoryStoreVersioning(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, model.Job{ID: "j1", Version: 1, Status: model.StatusApproved}))
	assert.ErrorIs(t, s.Create(ctx, model.Job{ID: "j1"}), ErrExists)

	j, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	j.Status = model.StatusScheduled
	updated, err := s.Update(ctx, j, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, j, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.Update(ctx, model.Job{ID: "ghost"}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, model.Job{ID: "j1", PODFiles: []string{"a"}}))
	j, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	j.PODFiles[0] = "mutated"
	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.PODFiles[0])
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, model.Job{ID: "a", CustomerID: "c1", TruckID: "t1", RequestedDate: d, Status: model.StatusScheduled}))
	require.NoError(t, s.Create(ctx, model.Job{ID: "b", CustomerID: "c2", TruckID: "t1", RequestedDate: d.AddDate(0, 0, 2)}))
	require.NoError(t, s.Create(ctx, model.Job{ID: "c", CustomerID: "c1", TruckID: "t2", RequestedDate: d}))

	res, err := s.List(ctx, Filter{TruckID: "t1"})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.List(ctx, Filter{CustomerID: "c1", Status: model.StatusScheduled})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)

	res, err = s.List(ctx, Filter{From: d.AddDate(0, 0, 1), To: d.AddDate(0, 0, 3)})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}
