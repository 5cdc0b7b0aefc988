package notify

import (
	"encoding/json"
	"time"
)

const (
	EventLowStock           = "LowStock"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentFailed      = "PaymentFailed"

	// EventPaymentResult is consumed, not produced: the payment provider's
	// capture outcome arriving on the results topic.
	EventPaymentResult = "PaymentResult"
)

// Envelope is the versioned wrapper around every event on the wire.
type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type LowStockPayload struct {
	SKU       string `json:"sku"`
	Remaining int    `json:"remaining"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type PaymentFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type PaymentResultPayload struct {
	PaymentID     string `json:"payment_id"`
	Success       bool   `json:"success"`
	ExternalRef   string `json:"external_reference"`
	FailureReason string `json:"failure_reason,omitempty"`
}
