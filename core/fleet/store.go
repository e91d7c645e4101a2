// Package fleet is the read side of the truck registry used by dispatch.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/haulage/core/model"
)

var ErrTruckNotFound = errors.New("fleet: truck not found")

type Filter struct {
	ActiveOnly bool
}

// Directory resolves trucks by id.
type Directory interface {
	Truck(ctx context.Context, id string) (model.Truck, error)
	List(ctx context.Context, f Filter) ([]model.Truck, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Truck
}

func NewMemoryStore(trucks ...model.Truck) *MemoryStore {
	s := &MemoryStore{data: map[string]model.Truck{}}
	for _, t := range trucks {
		s.data[t.ID] = t
	}
	return s
}

func (s *MemoryStore) Set(t model.Truck) {
	s.mu.Lock()
	s.data[t.ID] = t
	s.mu.Unlock()
}

// SetActive toggles a truck in or out of service. Unknown trucks are
// reported as not found.
func (s *MemoryStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTruckNotFound, id)
	}
	t.IsActive = active
	s.data[id] = t
	return nil
}

func (s *MemoryStore) Truck(_ context.Context, id string) (model.Truck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[id]
	if !ok {
		return model.Truck{}, fmt.Errorf("%w: %s", ErrTruckNotFound, id)
	}
	return t, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.Truck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Truck, 0, len(s.data))
	for _, t := range s.data {
		if f.ActiveOnly && !t.IsActive {
			continue
		}
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
