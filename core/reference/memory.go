package reference

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/haulage/core/model"
)

// MemoryCustomers is an in-memory CustomerDirectory.
type MemoryCustomers struct {
	mu   sync.RWMutex
	data map[string]model.Customer
}

// NewMemoryCustomers returns a directory seeded with the given customers.
func NewMemoryCustomers(cs ...model.Customer) *MemoryCustomers {
	m := &MemoryCustomers{data: make(map[string]model.Customer, len(cs))}
	for _, c := range cs {
		m.data[c.ID] = c
	}
	return m
}

// Put adds or replaces a customer.
func (m *MemoryCustomers) Put(c model.Customer) {
	m.mu.Lock()
	m.data[c.ID] = c
	m.mu.Unlock()
}

func (m *MemoryCustomers) Customer(_ context.Context, id string) (model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data[id]
	if !ok {
		return model.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c, nil
}

// List returns all customers sorted by id.
func (m *MemoryCustomers) List() []model.Customer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Customer, 0, len(m.data))
	for _, c := range m.data {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemoryCounterStore keeps counters in a mutex guarded map.
type MemoryCounterStore struct {
	mu   sync.Mutex
	data map[string]model.CustomerJobCounter
}

// NewMemoryCounterStore returns an empty counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{data: make(map[string]model.CustomerJobCounter)}
}

func (s *MemoryCounterStore) Next(_ context.Context, customerID string, docketID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.data[customerID]
	c.CustomerID = customerID
	c.DocketID = docketID
	c.LastSequence = NextSequence(c.LastSequence)
	s.data[customerID] = c
	return c.LastSequence, nil
}

// Get returns the counter of a customer if one exists.
func (s *MemoryCounterStore) Get(customerID string) (model.CustomerJobCounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[customerID]
	return c, ok
}

// Set overwrites a counter. It is used to seed state.
func (s *MemoryCounterStore) Set(c model.CustomerJobCounter) {
	s.mu.Lock()
	s.data[c.CustomerID] = c
	s.mu.Unlock()
}
