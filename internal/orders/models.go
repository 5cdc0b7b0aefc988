package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Order is created exactly once per successful checkout. Money fields are
// fixed at creation; only status, payment status and the lifecycle
// timestamps move afterwards.
type Order struct {
	ID                 string
	CustomerID         string
	Status             Status
	PaymentStatus      PaymentStatus
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	ShippingAmount     decimal.Decimal
	DiscountAmount     decimal.Decimal
	TotalAmount        decimal.Decimal
	Currency           string
	ShippingAddressRef string
	BillingAddressRef  string
	ReservationToken   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
}

// Line freezes sku, name and unit price at order creation so later catalog
// edits never alter historical totals.
type Line struct {
	OrderID   string
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// StatusEvent is one row of the append-only audit trail. Never updated,
// never deleted.
type StatusEvent struct {
	OrderID string
	Status  Status
	At      time.Time
	Actor   string
	Notes   string
}

// NewID returns an order id in the ORD-XXXXXXXX form.
func NewID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}
