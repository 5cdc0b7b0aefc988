package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/inventory"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/payments"
	"github.com/nexuscommerce/order-engine/internal/pricing"
)

var (
	ErrEmptyCart = errors.New("cart is empty, nothing to check out")
)

type CartLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Cart is the snapshot handed to Checkout. The engine trusts quantities
// only after validation; prices always come from the catalog.
type Cart struct {
	CustomerID string     `json:"customer_id"`
	Lines      []CartLine `json:"lines"`
}

type PaymentIntent struct {
	Method   string `json:"method"`
	Currency string `json:"currency"`
}

// Coordinator sequences inventory locking, order creation and payment
// linkage so that either inventory is committed and an order exists, or
// neither happened. It is the only entry point collaborators call.
type Coordinator struct {
	Ledger     inventory.Ledger
	Catalog    catalog.Catalog
	Orders     *orders.Service
	Reconciler *payments.Reconciler
	Policy     pricing.Policy
}

// Checkout turns a cart into a pending order with a pending payment
// attempt. Stock locks are held only inside Ledger.Reserve; by the time
// anything slow (payment provider) happens, the deduction is already
// committed and unpaid orders are the reaper's problem, not a lock's.
func (c *Coordinator) Checkout(ctx context.Context, cart Cart, shippingRef, billingRef string, intent PaymentIntent) (*orders.Order, error) {
	if len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	items := make([]inventory.ItemQuantity, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		items = append(items, inventory.ItemQuantity{SKU: l.SKU, Quantity: l.Quantity})
	}

	token, err := c.Ledger.Reserve(ctx, items)
	if err != nil {
		return nil, err // StockError names the offending sku
	}

	orderID := orders.NewID()
	lines := make([]orders.Line, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		item, err := c.Catalog.Item(ctx, l.SKU)
		if err != nil {
			c.release(ctx, token)
			return nil, err // catalog.InconsistencyError
		}
		lines = append(lines, pricing.SnapshotLine(orderID, item, l.Quantity))
	}

	totals := pricing.ComputeTotals(lines, c.Policy)
	now := time.Now().UTC()
	order := &orders.Order{
		ID:                 orderID,
		CustomerID:         cart.CustomerID,
		Status:             orders.StatusPending,
		PaymentStatus:      orders.PaymentPending,
		Subtotal:           totals.Subtotal,
		TaxAmount:          totals.Tax,
		ShippingAmount:     totals.Shipping,
		DiscountAmount:     totals.Discount,
		TotalAmount:        totals.Total,
		Currency:           intent.Currency,
		ShippingAddressRef: shippingRef,
		BillingAddressRef:  billingRef,
		ReservationToken:   token,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	ev := orders.StatusEvent{
		OrderID: orderID,
		Status:  orders.StatusPending,
		At:      now,
		Actor:   "customer:" + cart.CustomerID,
		Notes:   "order placed",
	}

	if err := c.Orders.Create(ctx, order, lines, ev); err != nil {
		c.release(ctx, token)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if err := c.Ledger.Commit(ctx, token); err != nil {
		c.compensate(ctx, orderID, token, "reservation commit failed")
		return nil, fmt.Errorf("commit reservation: %w", err)
	}

	if _, err := c.Reconciler.Initiate(ctx, order, totals.Total, intent.Method); err != nil {
		c.compensate(ctx, orderID, token, "payment initiation failed")
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	return order, nil
}

// compensate undoes a checkout that failed after the order row landed: the
// order is closed as cancelled and the reservation released.
func (c *Coordinator) compensate(ctx context.Context, orderID, token, reason string) {
	if _, err := c.Orders.Transition(ctx, orderID, orders.StatusCancelled, "system", reason); err != nil {
		log.Printf("compensating cancel of order %s: %v", orderID, err)
	}
	c.release(ctx, token)
}

func (c *Coordinator) release(ctx context.Context, token string) {
	if err := c.Ledger.Release(ctx, token); err != nil {
		log.Printf("release reservation %s: %v", token, err)
	}
}

// CancelOrder moves the order to cancelled and releases its reservation in
// the same unit of work. The transition goes through the order-level lock,
// so a payment result landing concurrently is serialized against it: once
// the order is cancelled, the late completion cannot confirm it and stock
// is released exactly once.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, actor string) error {
	return c.cancel(ctx, orderID, actor, "order cancelled")
}

func (c *Coordinator) cancel(ctx context.Context, orderID, actor, notes string) error {
	o, err := c.Orders.Transition(ctx, orderID, orders.StatusCancelled, actor, notes)
	if err != nil {
		return err
	}
	if o.ReservationToken != "" {
		if err := c.Ledger.Release(ctx, o.ReservationToken); err != nil {
			return fmt.Errorf("release inventory for order %s: %w", orderID, err)
		}
	}
	return nil
}

// UpdateOrderStatus applies a caller-requested transition. A request for
// cancelled routes through the cancellation path so inventory release is
// never skipped. Refund-only states cannot be requested directly.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status, actor, notes string) (*orders.Order, error) {
	switch to {
	case orders.StatusCancelled:
		if err := c.cancel(ctx, orderID, actor, notes); err != nil {
			return nil, err
		}
		return c.Orders.Get(ctx, orderID)
	case orders.StatusRefunded, orders.StatusPartiallyRefunded:
		o, err := c.Orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, &orders.InvalidTransitionError{From: o.Status, To: to}
	default:
		return c.Orders.Transition(ctx, orderID, to, actor, notes)
	}
}

// Order, Lines, Events, Payments expose read access for collaborators.
func (c *Coordinator) Order(ctx context.Context, orderID string) (*orders.Order, error) {
	return c.Orders.Get(ctx, orderID)
}

func (c *Coordinator) OrderLines(ctx context.Context, orderID string) ([]orders.Line, error) {
	return c.Orders.Lines(ctx, orderID)
}

func (c *Coordinator) OrderEvents(ctx context.Context, orderID string) ([]orders.StatusEvent, error) {
	return c.Orders.Events(ctx, orderID)
}
