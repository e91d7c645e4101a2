package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/haulage/core/model"
)

// MemoryStore is a concurrency safe in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Assignment
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Assignment{}, now: time.Now}
}

func (s *MemoryStore) Assign(_ context.Context, a model.Assignment) (model.Assignment, bool, error) {
	if a.JobID == "" || a.TruckID == "" {
		return model.Assignment{}, false, fmt.Errorf("assignment requires job and truck ids")
	}
	a = Normalize(a, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data[a.JobID]
	s.data[a.JobID] = a
	return prev, ok, nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[jobID]
	if !ok {
		return model.Assignment{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return a, nil
}

func (s *MemoryStore) Remove(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(s.data, jobID)
	return nil
}

func (s *MemoryStore) ListBucket(_ context.Context, truckID string, date time.Time, slot string) ([]model.Assignment, error) {
	d := model.Day(date)
	return s.filter(func(a model.Assignment) bool {
		return a.TruckID == truckID && a.Date.Equal(d) && a.TimeSlotID == slot
	}), nil
}

func (s *MemoryStore) ListRange(_ context.Context, truckID string, from, to time.Time) ([]model.Assignment, error) {
	f, t := model.Day(from), model.Day(to)
	return s.filter(func(a model.Assignment) bool {
		return a.TruckID == truckID && !a.Date.Before(f) && !a.Date.After(t)
	}), nil
}

func (s *MemoryStore) filter(keep func(model.Assignment) bool) []model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Assignment, 0)
	for _, a := range s.data {
		if keep(a) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.Before(res[j].Date)
		}
		return res[i].JobID < res[j].JobID
	})
	return res
}
