package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore backs unit tests and dev wiring.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	lines  map[string][]Line
	events map[string][]StatusEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		lines:  make(map[string][]Line),
		events: make(map[string][]StatusEvent),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *Order, lines []Line, ev StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *o
	s.orders[o.ID] = &cp
	s.lines[o.ID] = append([]Line(nil), lines...)
	s.events[o.ID] = []StatusEvent{ev}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) Lines(_ context.Context, id string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]Line(nil), s.lines[id]...), nil
}

func (s *MemoryStore) Events(_ context.Context, id string) ([]StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]StatusEvent(nil), s.events[id]...), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status, ev StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStaleStatus
	}
	o.Status = to
	o.UpdatedAt = ev.At
	switch to {
	case StatusConfirmed:
		t := ev.At
		o.ConfirmedAt = &t
	case StatusShipped:
		t := ev.At
		o.ShippedAt = &t
	case StatusDelivered:
		t := ev.At
		o.DeliveredAt = &t
	}
	s.events[id] = append(s.events[id], ev)
	return nil
}

func (s *MemoryStore) SetPaymentStatus(_ context.Context, id string, ps PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = ps
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) StalePending(_ context.Context, cutoff time.Time) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}
