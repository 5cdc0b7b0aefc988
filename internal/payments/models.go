package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundCancelled  RefundStatus = "cancelled"
)

// Payment is one attempt to collect an order's total. An order accumulates
// multiple payments only through retries, with earlier attempts failed or
// cancelled.
type Payment struct {
	ID            string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Status        Status
	ExternalRef   string
	FailureReason string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time
}

// Refund reverses part or all of a completed payment. Cumulative completed
// refund amount never exceeds the payment amount.
type Refund struct {
	ID            string
	PaymentID     string
	Amount        decimal.Decimal
	Currency      string
	Status        RefundStatus
	Reason        string
	ExternalRef   string
	FailureReason string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time
}

// Result is the plain-data outcome reported by the payment provider for a
// capture or refund attempt.
type Result struct {
	Success       bool   `json:"success"`
	ExternalRef   string `json:"external_reference"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// InvalidRefundAmountError rejects refund requests that are non-positive
// or would push cumulative completed refunds past the payment amount.
type InvalidRefundAmountError struct {
	PaymentID string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InvalidRefundAmountError) Error() string {
	return fmt.Sprintf("invalid refund amount %s for payment %s: %s refundable",
		e.Requested, e.PaymentID, e.Remaining)
}

func NewPaymentID() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}

func NewRefundID() string {
	return "REF-" + strings.ToUpper(uuid.NewString()[:8])
}
