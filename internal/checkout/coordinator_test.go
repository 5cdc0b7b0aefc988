package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/inventory"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/payments"
	"github.com/nexuscommerce/order-engine/internal/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	coord    *Coordinator
	ledger   *inventory.MemoryLedger
	catalog  *catalog.Memory
	orders   *orders.Service
	payments *payments.MemoryStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ledger := inventory.NewMemoryLedger()
	require.NoError(t, ledger.SetStock(ctx, "WIDGET-1", 5, 0))
	require.NoError(t, ledger.SetStock(ctx, "GADGET-2", 10, 0))

	cat := catalog.NewMemory()
	cat.Put(catalog.Item{SKU: "WIDGET-1", Name: "Widget", UnitPrice: d("19.99")})
	cat.Put(catalog.Item{SKU: "GADGET-2", Name: "Gadget", UnitPrice: d("5.00")})

	orderSvc := orders.NewService(orders.NewMemoryStore())
	payStore := payments.NewMemoryStore()
	rec := payments.NewReconciler(payStore, orderSvc, nil)

	coord := &Coordinator{
		Ledger:     ledger,
		Catalog:    cat,
		Orders:     orderSvc,
		Reconciler: rec,
		Policy: pricing.StandardPolicy{
			TaxRate:        d("0.10"),
			ShippingFlat:   d("9.99"),
			FreeShippingAt: d("100.00"),
		},
	}
	return &fixture{coord: coord, ledger: ledger, catalog: cat, orders: orderSvc, payments: payStore}
}

func cart(lines ...CartLine) Cart {
	return Cart{CustomerID: "cust-1", Lines: lines}
}

var intent = PaymentIntent{Method: "card", Currency: "USD"}

func TestCheckout_HappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.coord.Checkout(ctx, cart(
		CartLine{SKU: "WIDGET-1", Quantity: 2},
		CartLine{SKU: "GADGET-2", Quantity: 1},
	), "ship-1", "bill-1", intent)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(d("44.98")))
	assert.True(t, o.TaxAmount.Equal(d("4.50")))
	assert.True(t, o.ShippingAmount.Equal(d("9.99")))
	assert.True(t, o.TotalAmount.Equal(d("59.47")))
	assert.NotEmpty(t, o.ReservationToken)

	// Stock deducted and committed.
	a1, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 3, a1)
	res, ok := f.ledger.Reservation(o.ReservationToken)
	require.True(t, ok)
	assert.Equal(t, inventory.ReservationCommitted, res.Status)

	// Lines froze the catalog prices.
	lines, err := f.coord.OrderLines(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// One pending payment attempt for the full total.
	pays, err := f.payments.PaymentsByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.True(t, pays[0].Amount.Equal(o.TotalAmount))
	assert.Equal(t, payments.StatusPending, pays[0].Status)

	events, err := f.coord.OrderEvents(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, orders.StatusPending, events[0].Status)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := setup(t)
	_, err := f.coord.Checkout(context.Background(), cart(), "s", "b", intent)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 6}), "s", "b", intent)

	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "WIDGET-1", stockErr.SKU)

	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)
}

func TestCheckout_CatalogVanishedReleasesStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// The SKU has stock but disappears from the catalog before pricing.
	require.NoError(t, f.ledger.SetStock(ctx, "GHOST-1", 4, 0))

	_, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "GHOST-1", Quantity: 2}), "s", "b", intent)

	var inconsistency *catalog.InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, "GHOST-1", inconsistency.SKU)

	a, _ := f.ledger.Available(ctx, "GHOST-1")
	assert.Equal(t, 4, a)
}

// failingOrderStore rejects Create to simulate a persistence outage mid
// checkout.
type failingOrderStore struct {
	orders.Store
}

func (s *failingOrderStore) Create(context.Context, *orders.Order, []orders.Line, orders.StatusEvent) error {
	return errors.New("db down")
}

func TestCheckout_PersistFailureRestoresStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.coord.Orders = orders.NewService(&failingOrderStore{Store: orders.NewMemoryStore()})

	_, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 3}), "s", "b", intent)
	require.Error(t, err)

	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)
}

// failingPaymentStore rejects CreatePayment so payment initiation fails
// after the order row landed.
type failingPaymentStore struct {
	payments.Store
}

func (s *failingPaymentStore) CreatePayment(context.Context, *payments.Payment) error {
	return errors.New("db down")
}

func TestCheckout_PaymentInitFailureCompensates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.coord.Reconciler = payments.NewReconciler(
		&failingPaymentStore{Store: payments.NewMemoryStore()}, f.orders, nil)

	_, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 3}), "s", "b", intent)
	require.Error(t, err)

	// The only order in the store must be cancelled with its stock back.
	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)

	stale, err := f.orders.StalePending(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale) // nothing left pending
}

func TestCancelOrder_ReleasesStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 3}), "s", "b", intent)
	require.NoError(t, err)
	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	require.Equal(t, 2, a)

	require.NoError(t, f.coord.CancelOrder(ctx, o.ID, "customer:cust-1"))

	got, _ := f.coord.Order(ctx, o.ID)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	a, _ = f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)

	res, _ := f.ledger.Reservation(o.ReservationToken)
	assert.Equal(t, inventory.ReservationReleased, res.Status)
}

func TestCancelOrder_TerminalOrderRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 1}), "s", "b", intent)
	require.NoError(t, err)
	require.NoError(t, f.coord.CancelOrder(ctx, o.ID, "customer:cust-1"))

	err = f.coord.CancelOrder(ctx, o.ID, "customer:cust-1")
	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, orders.StatusCancelled, invalid.From)

	// Double cancel must not restore the stock twice.
	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)
}

func TestCancelVsPaymentResult_StockReleasedExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rec := f.coord.Reconciler

	o, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 2}), "s", "b", intent)
	require.NoError(t, err)
	pays, _ := f.payments.PaymentsByOrder(ctx, o.ID)
	require.Len(t, pays, 1)

	var wg sync.WaitGroup
	var cancelErr, payErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		cancelErr = f.coord.CancelOrder(ctx, o.ID, "customer:cust-1")
	}()
	go func() {
		defer wg.Done()
		_, payErr = rec.RecordResult(ctx, pays[0].ID, payments.Result{Success: true, ExternalRef: "ext"})
	}()
	wg.Wait()

	// The capture always completes and the cancel always lands: it either
	// runs before the confirm or takes the confirmed -> cancelled edge
	// after it. Either way the stock must come back exactly once.
	require.NoError(t, payErr)
	require.NoError(t, cancelErr)

	got, _ := f.coord.Order(ctx, o.ID)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	gotP, _ := rec.Payment(ctx, pays[0].ID)
	assert.Equal(t, payments.StatusCompleted, gotP.Status)

	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)
	res, _ := f.ledger.Reservation(o.ReservationToken)
	assert.Equal(t, inventory.ReservationReleased, res.Status)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.coord.Checkout(ctx, cart(CartLine{SKU: "WIDGET-1", Quantity: 1}), "s", "b", intent)
	require.NoError(t, err)
	_, err = f.orders.Transition(ctx, o.ID, orders.StatusConfirmed, "payment", "")
	require.NoError(t, err)

	got, err := f.coord.UpdateOrderStatus(ctx, o.ID, orders.StatusProcessing, "ops", "picking")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, got.Status)

	// Refund states are owned by the reconciler, not the status endpoint.
	_, err = f.coord.UpdateOrderStatus(ctx, o.ID, orders.StatusRefunded, "ops", "")
	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	// Cancelling through the generic update still releases stock.
	got, err = f.coord.UpdateOrderStatus(ctx, o.ID, orders.StatusCancelled, "ops", "oos")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	a, _ := f.ledger.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, a)
}

func TestCheckout_FreeShippingOverThreshold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// 6 gadgets + 4 widgets = 30.00 + 79.96 = 109.96 >= 100.00
	o, err := f.coord.Checkout(ctx, cart(
		CartLine{SKU: "GADGET-2", Quantity: 6},
		CartLine{SKU: "WIDGET-1", Quantity: 4},
	), "s", "b", intent)
	require.NoError(t, err)

	assert.True(t, o.Subtotal.Equal(d("109.96")))
	assert.True(t, o.ShippingAmount.Equal(decimal.Zero))
	assert.True(t, o.TotalAmount.Equal(d("120.96"))) // +11.00 tax
}
