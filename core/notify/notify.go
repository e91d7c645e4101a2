// Package notify fans notifications out to users through an in-process
// outbox. Delivery retries independently of the job mutation that produced
// the notification and never reports failure back to it.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kilianp07/haulage/core/model"
)

// Sink delivers a single notification, for example by storing it for the UI
// or relaying it over MQTT.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Directory returns the users to notify.
type Directory interface {
	// Dispatchers returns every admin and dispatcher user.
	Dispatchers(ctx context.Context) ([]model.User, error)
	// CustomerUsers returns users linked to the customer directly or through
	// their additional customer ids.
	CustomerUsers(ctx context.Context, customerID string) ([]model.User, error)
}

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewMemoryDirectory(users ...model.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]model.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Put(u model.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) Dispatchers(context.Context) ([]model.User, error) {
	return d.filter(model.User.IsDispatcher), nil
}

func (d *MemoryDirectory) CustomerUsers(_ context.Context, customerID string) ([]model.User, error) {
	return d.filter(func(u model.User) bool { return u.LinkedTo(customerID) }), nil
}

func (d *MemoryDirectory) filter(keep func(model.User) bool) []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, 0)
	for _, u := range d.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemorySink records delivered notifications. A notification whose id is
// already held is ignored, so retried deliveries are stored once. Fail, when
// set, is consulted before each delivery.
type MemorySink struct {
	mu    sync.Mutex
	items []model.Notification
	Fail  func(n model.Notification) error
}

func (s *MemorySink) Deliver(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		if err := s.Fail(n); err != nil {
			return err
		}
	}
	if n.ID != "" {
		for _, have := range s.items {
			if have.ID == n.ID {
				return nil
			}
		}
	}
	s.items = append(s.items, n)
	return nil
}

// All returns a copy of the delivered notifications.
func (s *MemorySink) All() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.items...)
}

// ByType returns delivered notifications of type t.
func (s *MemorySink) ByType(t model.NotificationType) []model.Notification {
	var out []model.Notification
	for _, n := range s.All() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Inbox is a Sink that keeps notifications for the portal UI.
type Inbox interface {
	Sink
	// ListForUser returns the user's notifications, newest first.
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

var _ Inbox = (*MemorySink)(nil)

func (s *MemorySink) ListForUser(_ context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySink) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
		}
	}
	return nil
}

// MultiSink delivers to every sink and joins the errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
