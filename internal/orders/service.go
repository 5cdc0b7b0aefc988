package orders

import (
	"context"
	"time"

	"github.com/nexuscommerce/order-engine/internal/syncx"
)

// Service drives the order state machine. Every mutation of one order goes
// through that order's lock, which makes a cancel request linearizable with
// an in-flight payment result for the same order; the store's
// compare-and-set is the second line of defense against stale writers.
type Service struct {
	store Store

	// OnStatusChange receives every applied transition plus order creation.
	// Fire-and-forget; must not block.
	OnStatusChange func(orderID string, status Status)

	locks *syncx.KeyedMutex
}

func NewService(store Store) *Service {
	return &Service{store: store, locks: syncx.NewKeyedMutex()}
}

func (s *Service) Create(ctx context.Context, o *Order, lines []Line, ev StatusEvent) error {
	if err := s.store.Create(ctx, o, lines, ev); err != nil {
		return err
	}
	if s.OnStatusChange != nil {
		s.OnStatusChange(o.ID, o.Status)
	}
	return nil
}

// Transition applies one edge of the state machine and appends exactly one
// status event. Illegal edges fail with *InvalidTransitionError.
func (s *Service) Transition(ctx context.Context, orderID string, to Status, actor, notes string) (*Order, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	ev := StatusEvent{
		OrderID: orderID,
		Status:  to,
		At:      time.Now().UTC(),
		Actor:   actor,
		Notes:   notes,
	}
	if err := s.store.UpdateStatus(ctx, orderID, o.Status, to, ev); err != nil {
		return nil, err
	}
	if s.OnStatusChange != nil {
		s.OnStatusChange(orderID, to)
	}
	return s.store.Get(ctx, orderID)
}

func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) error {
	return s.store.SetPaymentStatus(ctx, orderID, ps)
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) Lines(ctx context.Context, orderID string) ([]Line, error) {
	return s.store.Lines(ctx, orderID)
}

func (s *Service) Events(ctx context.Context, orderID string) ([]StatusEvent, error) {
	return s.store.Events(ctx, orderID)
}

func (s *Service) StalePending(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	return s.store.StalePending(ctx, cutoff)
}
