package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/haulage/core/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Job{}}
}

func (s *MemoryStore) Create(_ context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[j.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, j.ID)
	}
	s.data[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.data[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, j model.Job, expected int64) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[j.ID]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, j.ID)
	}
	if cur.Version != expected {
		return model.Job{}, fmt.Errorf("%w: %s at %d, expected %d", ErrVersionConflict, j.ID, cur.Version, expected)
	}
	j.Version = expected + 1
	s.data[j.ID] = j.Clone()
	return j, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Job, 0, len(s.data))
	for _, j := range s.data {
		if f.Match(j) {
			res = append(res, j.Clone())
		}
	}
	sort.Slice(res, func(i, k int) bool { return res[i].ID < res[k].ID })
	return res, nil
}
