package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")

	// ErrStaleStatus means a compare-and-set on payment or refund status
	// lost to a concurrent writer.
	ErrStaleStatus = errors.New("payment state changed concurrently")
)

// Store persists payments and refunds. Status updates are compare-and-set
// on the current status so stale transitions are rejected cheaply.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	PaymentsByOrder(ctx context.Context, orderID string) ([]*Payment, error)
	// UpdatePayment writes p's mutable fields, requiring the stored status
	// to still be `from`.
	UpdatePayment(ctx context.Context, p *Payment, from Status) error

	CreateRefund(ctx context.Context, r *Refund) error
	GetRefund(ctx context.Context, id string) (*Refund, error)
	RefundsByPayment(ctx context.Context, paymentID string) ([]*Refund, error)
	UpdateRefund(ctx context.Context, r *Refund, from RefundStatus) error
}

// Provider is the boundary to the external payment gateway. Capture
// results arrive asynchronously through RecordResult; only refunds are
// invoked synchronously from the engine.
type Provider interface {
	Refund(ctx context.Context, payment *Payment, amount decimal.Decimal, reason string) (Result, error)
}
