package reaper

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexuscommerce/order-engine/internal/orders"
)

// Reaper cancels pending orders whose payment never completed within the
// TTL, releasing their inventory reservations. Failed payments leave the
// reservation in place deliberately (the payment may be retried); this is
// the component that eventually takes it back.
type Reaper struct {
	Orders *orders.Service

	// Cancel is the coordinator's cancellation path, so release and status
	// event handling stay in one place.
	Cancel func(ctx context.Context, orderID, actor string) error

	TTL      time.Duration
	Interval time.Duration
}

// Run sweeps on every tick until the context ends.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Printf("reaper sweep: %v", err)
			} else if n > 0 {
				log.Printf("reaper released %d stale pending orders", n)
			}
		}
	}
}

// Sweep cancels every pending order older than the TTL and reports how
// many were reaped. Orders that moved on (or were cancelled by someone
// else) between listing and cancelling are skipped, not errors.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	stale, err := r.Orders.StalePending(ctx, time.Now().Add(-r.TTL))
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var reaped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, o := range stale {
		o := o
		g.Go(func() error {
			err := r.Cancel(gctx, o.ID, "reaper")
			var invalid *orders.InvalidTransitionError
			switch {
			case err == nil:
				reaped.Add(1)
				return nil
			case errors.As(err, &invalid), errors.Is(err, orders.ErrStaleStatus):
				return nil // lost the race to a real payment or cancel
			default:
				return err
			}
		})
	}
	err = g.Wait()
	return int(reaped.Load()), err
}
