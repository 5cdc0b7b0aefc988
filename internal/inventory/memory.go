package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRecord struct {
	mu        sync.Mutex
	available int
	threshold int
}

// MemoryLedger keeps stock in process memory. Each SKU carries its own
// lock; a batch reservation takes the locks in SKU order so two multi-item
// reservations can never deadlock each other.
type MemoryLedger struct {
	mu           sync.Mutex // guards the maps, never held across record locks
	records      map[string]*memRecord
	reservations map[string]*Reservation

	OnLowStock LowStockFunc
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records:      make(map[string]*memRecord),
		reservations: make(map[string]*Reservation),
	}
}

func (l *MemoryLedger) SetStock(_ context.Context, sku string, quantity, lowStockThreshold int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[sku] = &memRecord{available: quantity, threshold: lowStockThreshold}
	return nil
}

func (l *MemoryLedger) Available(_ context.Context, sku string) (int, error) {
	l.mu.Lock()
	rec, ok := l.records[sku]
	l.mu.Unlock()
	if !ok {
		return 0, wrapSKU(ErrUnknownSKU, sku)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.available, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, items []ItemQuantity) (string, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return "", err
	}

	skus := make([]string, 0, len(merged))
	for sku := range merged {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	l.mu.Lock()
	recs := make([]*memRecord, 0, len(skus))
	for _, sku := range skus {
		rec, ok := l.records[sku]
		if !ok {
			l.mu.Unlock()
			return "", wrapSKU(ErrUnknownSKU, sku)
		}
		recs = append(recs, rec)
	}
	l.mu.Unlock()

	for _, rec := range recs {
		rec.mu.Lock()
	}
	unlock := func() {
		for _, rec := range recs {
			rec.mu.Unlock()
		}
	}

	// First pass: every item must be coverable before anything moves.
	for i, sku := range skus {
		if recs[i].available < merged[sku] {
			stockErr := &StockError{SKU: sku, Requested: merged[sku], Available: recs[i].available}
			unlock()
			return "", stockErr
		}
	}

	var low []ItemQuantity
	for i, sku := range skus {
		recs[i].available -= merged[sku]
		if recs[i].available <= recs[i].threshold {
			low = append(low, ItemQuantity{SKU: sku, Quantity: recs[i].available})
		}
	}
	unlock()

	res := &Reservation{
		Token:     uuid.NewString(),
		Status:    ReservationReserved,
		CreatedAt: time.Now().UTC(),
	}
	for _, sku := range skus {
		res.Items = append(res.Items, ItemQuantity{SKU: sku, Quantity: merged[sku]})
	}

	l.mu.Lock()
	l.reservations[res.Token] = res
	l.mu.Unlock()

	if l.OnLowStock != nil {
		for _, it := range low {
			l.OnLowStock(it.SKU, it.Quantity)
		}
	}
	return res.Token, nil
}

func (l *MemoryLedger) Commit(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok {
		return ErrReservationNotFound
	}
	switch res.Status {
	case ReservationReserved:
		res.Status = ReservationCommitted
		return nil
	case ReservationCommitted:
		return nil
	default:
		return ErrReservationState
	}
}

// Release restores quantity for both soft holds and committed deductions.
// Releasing an already-released token is a no-op so retried cleanup and
// the reaper can race safely.
func (l *MemoryLedger) Release(_ context.Context, token string) error {
	l.mu.Lock()
	res, ok := l.reservations[token]
	if !ok {
		l.mu.Unlock()
		return ErrReservationNotFound
	}
	if res.Status == ReservationReleased {
		l.mu.Unlock()
		return nil
	}
	res.Status = ReservationReleased
	recs := make([]*memRecord, len(res.Items))
	for i, it := range res.Items {
		recs[i] = l.records[it.SKU]
	}
	l.mu.Unlock()

	for i, it := range res.Items {
		if recs[i] == nil {
			continue
		}
		recs[i].mu.Lock()
		recs[i].available += it.Quantity
		recs[i].mu.Unlock()
	}
	return nil
}

// Reservation returns a copy, for inspection by the reaper and tests.
func (l *MemoryLedger) Reservation(token string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok {
		return Reservation{}, false
	}
	out := *res
	out.Items = append([]ItemQuantity(nil), res.Items...)
	return out, true
}

func mergeItems(items []ItemQuantity) (map[string]int, error) {
	if len(items) == 0 {
		return nil, ErrEmptyReservation
	}
	merged := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, wrapSKU(ErrInvalidQuantity, it.SKU)
		}
		merged[it.SKU] += it.Quantity
	}
	return merged, nil
}
