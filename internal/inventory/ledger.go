package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ItemQuantity struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a provisional hold on stock. Reserve decrements available
// quantity immediately; Commit makes the deduction permanent, Release adds
// it back. The token is the opaque handle callers keep.
type Reservation struct {
	Token     string
	Items     []ItemQuantity
	Status    ReservationStatus
	CreatedAt time.Time
}

// StockError reports the first item in a batch that could not be covered.
// The whole batch is rejected; no quantity is touched.
type StockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku=%s: requested %d, available %d",
		e.SKU, e.Requested, e.Available)
}

var (
	ErrUnknownSKU          = errors.New("unknown sku")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationState    = errors.New("reservation is not in a committable state")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrEmptyReservation    = errors.New("reservation needs at least one item")
)

func wrapSKU(err error, sku string) error {
	return fmt.Errorf("%w: %s", err, sku)
}

// LowStockFunc is invoked after a reservation drops a SKU to or below its
// low-stock threshold. Delivery is best-effort and must not block.
type LowStockFunc func(sku string, remaining int)

// Ledger tracks per-SKU available quantity. Reserve is all-or-nothing
// across the batch; Release is idempotent and also restores quantity for
// committed reservations (order cancellation).
type Ledger interface {
	Reserve(ctx context.Context, items []ItemQuantity) (token string, err error)
	Commit(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
	Available(ctx context.Context, sku string) (int, error)
	SetStock(ctx context.Context, sku string, quantity, lowStockThreshold int) error
}
