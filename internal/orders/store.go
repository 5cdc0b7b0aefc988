package orders

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")

	// ErrStaleStatus means the compare-and-set lost: someone else moved the
	// order first. The caller re-reads and decides.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// Store persists orders. Create is all-or-nothing: the order, its lines
// and the initial status event land together or not at all.
type Store interface {
	Create(ctx context.Context, o *Order, lines []Line, ev StatusEvent) error
	Get(ctx context.Context, id string) (*Order, error)
	Lines(ctx context.Context, id string) ([]Line, error)
	Events(ctx context.Context, id string) ([]StatusEvent, error)

	// UpdateStatus flips status from -> to and appends ev atomically,
	// failing with ErrStaleStatus when the current status is not `from`.
	UpdateStatus(ctx context.Context, id string, from, to Status, ev StatusEvent) error

	SetPaymentStatus(ctx context.Context, id string, ps PaymentStatus) error

	// StalePending lists pending orders created before the cutoff, for the
	// reservation reaper.
	StalePending(ctx context.Context, cutoff time.Time) ([]*Order, error)
}
