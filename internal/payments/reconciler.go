package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/syncx"
)

var (
	ErrInvalidAmount        = errors.New("payment amount must be positive")
	ErrPaymentNotRefundable = errors.New("payment has not completed, nothing to refund")
	ErrRefundNotProcessable = errors.New("refund is not pending or retryable")

	// ErrProvider marks an external gateway failure. The refund is recorded
	// as failed and may be retried; the order is left untouched.
	ErrProvider = errors.New("payment provider error")
)

// Reconciler tracks payment attempts against orders and keeps order status
// in sync with payment and refund outcomes. All mutations for one payment
// serialize on a per-payment lock; order transitions additionally go
// through the order-level lock inside orders.Service, which is what keeps
// a completing payment linearizable with a concurrent cancel.
type Reconciler struct {
	store    Store
	orders   *orders.Service
	provider Provider

	// OnPaymentFailed feeds the notification collaborator. Best-effort.
	OnPaymentFailed func(orderID, reason string)

	locks *syncx.KeyedMutex
}

func NewReconciler(store Store, orderSvc *orders.Service, provider Provider) *Reconciler {
	return &Reconciler{
		store:    store,
		orders:   orderSvc,
		provider: provider,
		locks:    syncx.NewKeyedMutex(),
	}
}

// Initiate opens a pending payment attempt for an order. Retries after a
// failed attempt create a fresh Payment against the same order.
func (r *Reconciler) Initiate(ctx context.Context, order *orders.Order, amount decimal.Decimal, method string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	p := &Payment{
		ID:        NewPaymentID(),
		OrderID:   order.ID,
		Amount:    amount,
		Currency:  order.Currency,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// RecordResult applies the provider's capture outcome. A second call for a
// payment that already reached a terminal status is a no-op. On success the
// order is confirmed; on failure the order stays pending and its inventory
// reservation is deliberately kept for a retry (the TTL reaper owns
// eventual release).
func (r *Reconciler) RecordResult(ctx context.Context, paymentID string, res Result) (*Payment, error) {
	r.locks.Lock(paymentID)
	defer r.locks.Unlock(paymentID)

	p, err := r.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return p, nil // already reconciled
	}

	now := time.Now().UTC()
	p.Status = StatusProcessing
	p.ProcessedAt = &now
	if err := r.store.UpdatePayment(ctx, p, StatusPending); err != nil {
		return nil, err
	}

	if !res.Success {
		p.Status = StatusFailed
		p.FailureReason = res.FailureReason
		if err := r.store.UpdatePayment(ctx, p, StatusProcessing); err != nil {
			return nil, err
		}
		if err := r.orders.SetPaymentStatus(ctx, p.OrderID, orders.PaymentFailed); err != nil {
			return nil, err
		}
		if r.OnPaymentFailed != nil {
			r.OnPaymentFailed(p.OrderID, res.FailureReason)
		}
		return p, nil
	}

	p.Status = StatusCompleted
	p.ExternalRef = res.ExternalRef
	p.CompletedAt = &now
	if err := r.store.UpdatePayment(ctx, p, StatusProcessing); err != nil {
		return nil, err
	}

	_, err = r.orders.Transition(ctx, p.OrderID, orders.StatusConfirmed, "payment:"+p.ID, "payment completed")
	var invalid *orders.InvalidTransitionError
	switch {
	case err == nil, errors.As(err, &invalid) && invalid.From == orders.StatusConfirmed:
		// Confirmed now, or already confirmed by an earlier attempt.
		if err := r.orders.SetPaymentStatus(ctx, p.OrderID, orders.PaymentPaid); err != nil {
			return nil, err
		}
	case errors.As(err, &invalid):
		// Cancel won the race: the order is closed and its stock released.
		// The captured money is reclaimed through the refund flow.
		log.Printf("payment %s completed but order %s is %s; leaving order untouched",
			p.ID, p.OrderID, invalid.From)
	default:
		return nil, err
	}
	return p, nil
}

// RequestRefund validates and records a refund request without touching the
// provider. amount must be positive and fit within the unrefunded remainder
// of the payment.
func (r *Reconciler) RequestRefund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*Refund, error) {
	r.locks.Lock(paymentID)
	defer r.locks.Unlock(paymentID)

	p, err := r.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case StatusCompleted, StatusPartiallyRefunded, StatusRefunded:
	default:
		return nil, ErrPaymentNotRefundable
	}

	refunded, err := r.completedRefundTotal(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	remaining := p.Amount.Sub(refunded)
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		return nil, &InvalidRefundAmountError{PaymentID: paymentID, Requested: amount, Remaining: remaining}
	}

	ref := &Refund{
		ID:        NewRefundID(),
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  p.Currency,
		Status:    RefundPending,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRefund(ctx, ref); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return ref, nil
}

// ProcessRefund attempts the external reversal. On success the refund
// completes and the order moves to partially_refunded or refunded depending
// on the cumulative completed amount. On provider failure the refund is
// marked failed and stays retryable.
func (r *Reconciler) ProcessRefund(ctx context.Context, refundID string) (*Refund, error) {
	ref, err := r.store.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}

	r.locks.Lock(ref.PaymentID)
	defer r.locks.Unlock(ref.PaymentID)

	// Re-read under the payment lock.
	ref, err = r.store.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	switch ref.Status {
	case RefundCompleted:
		return ref, nil // idempotent
	case RefundPending, RefundFailed:
	default:
		return nil, ErrRefundNotProcessable
	}

	p, err := r.store.GetPayment(ctx, ref.PaymentID)
	if err != nil {
		return nil, err
	}
	refunded, err := r.completedRefundTotal(ctx, ref.PaymentID)
	if err != nil {
		return nil, err
	}
	if ref.Amount.GreaterThan(p.Amount.Sub(refunded)) {
		return nil, &InvalidRefundAmountError{
			PaymentID: ref.PaymentID, Requested: ref.Amount, Remaining: p.Amount.Sub(refunded),
		}
	}

	now := time.Now().UTC()
	from := ref.Status
	ref.Status = RefundProcessing
	ref.ProcessedAt = &now
	if err := r.store.UpdateRefund(ctx, ref, from); err != nil {
		return nil, err
	}

	res, provErr := r.provider.Refund(ctx, p, ref.Amount, ref.Reason)
	if provErr != nil || !res.Success {
		reason := res.FailureReason
		if provErr != nil {
			reason = provErr.Error()
		}
		ref.Status = RefundFailed
		ref.FailureReason = reason
		if err := r.store.UpdateRefund(ctx, ref, RefundProcessing); err != nil {
			return nil, err
		}
		return ref, fmt.Errorf("%w: %s", ErrProvider, reason)
	}

	done := time.Now().UTC()
	ref.Status = RefundCompleted
	ref.ExternalRef = res.ExternalRef
	ref.CompletedAt = &done
	if err := r.store.UpdateRefund(ctx, ref, RefundProcessing); err != nil {
		return nil, err
	}

	total := refunded.Add(ref.Amount)
	full := total.GreaterThanOrEqual(p.Amount)

	target := orders.StatusPartiallyRefunded
	payStatus := StatusPartiallyRefunded
	orderPS := orders.PaymentPartiallyRefunded
	if full {
		target = orders.StatusRefunded
		payStatus = StatusRefunded
		orderPS = orders.PaymentRefunded
	}
	if p.Status != payStatus {
		from := p.Status
		p.Status = payStatus
		if err := r.store.UpdatePayment(ctx, p, from); err != nil {
			return nil, err
		}
	}
	if err := r.driveOrder(ctx, p.OrderID, target, ref.ID); err != nil {
		return nil, err
	}
	if err := r.orders.SetPaymentStatus(ctx, p.OrderID, orderPS); err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *Reconciler) driveOrder(ctx context.Context, orderID string, target orders.Status, refundID string) error {
	o, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == target {
		return nil
	}
	_, err = r.orders.Transition(ctx, orderID, target, "refund:"+refundID, "refund completed")
	var invalid *orders.InvalidTransitionError
	if errors.As(err, &invalid) {
		// Refund completed before the order reached delivered. The money
		// side is settled; the order lifecycle catches up on its own.
		log.Printf("refund %s completed but order %s cannot move %s -> %s",
			refundID, orderID, invalid.From, invalid.To)
		return nil
	}
	return err
}

func (r *Reconciler) completedRefundTotal(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	refs, err := r.store.RefundsByPayment(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, ref := range refs {
		if ref.Status == RefundCompleted {
			total = total.Add(ref.Amount)
		}
	}
	return total, nil
}

func (r *Reconciler) Payment(ctx context.Context, id string) (*Payment, error) {
	return r.store.GetPayment(ctx, id)
}

func (r *Reconciler) PaymentsForOrder(ctx context.Context, orderID string) ([]*Payment, error) {
	return r.store.PaymentsByOrder(ctx, orderID)
}

func (r *Reconciler) Refund(ctx context.Context, id string) (*Refund, error) {
	return r.store.GetRefund(ctx, id)
}

func (r *Reconciler) RefundsForPayment(ctx context.Context, paymentID string) ([]*Refund, error) {
	return r.store.RefundsByPayment(ctx, paymentID)
}
