package payments

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
	refunds  map[string]*Refund
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		refunds:  make(map[string]*Refund),
	}
}

func (s *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) PaymentsByOrder(_ context.Context, orderID string) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdatePayment(_ context.Context, p *Payment, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[p.ID]
	if !ok {
		return ErrPaymentNotFound
	}
	if cur.Status != from {
		return ErrStaleStatus
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateRefund(_ context.Context, r *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.refunds[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRefund(_ context.Context, id string) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return nil, ErrRefundNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) RefundsByPayment(_ context.Context, paymentID string) ([]*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateRefund(_ context.Context, r *Refund, from RefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.refunds[r.ID]
	if !ok {
		return ErrRefundNotFound
	}
	if cur.Status != from {
		return ErrStaleStatus
	}
	cp := *r
	s.refunds[r.ID] = &cp
	return nil
}
