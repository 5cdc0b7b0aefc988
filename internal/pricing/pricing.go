package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/orders"
)

// SnapshotLine freezes the catalog's current name and unit price onto an
// order line. Pure computation; the single price read already happened in
// the catalog lookup.
func SnapshotLine(orderID string, item catalog.Item, qty int) orders.Line {
	return orders.Line{
		OrderID:   orderID,
		SKU:       item.SKU,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  qty,
		LineTotal: item.UnitPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Policy computes tax, shipping and discount for a priced cart. Pluggable
// because real tax and shipping rules are jurisdiction-dependent; the
// engine never hardcodes a formula.
type Policy interface {
	Assess(subtotal decimal.Decimal, lines []orders.Line) (tax, shipping, discount decimal.Decimal)
}

// StandardPolicy is the flat-rate placeholder: tax as a percentage of the
// subtotal, a flat shipping charge waived at or over the free-shipping
// threshold, no discount. All three numbers come from configuration.
type StandardPolicy struct {
	TaxRate        decimal.Decimal // e.g. 0.10
	ShippingFlat   decimal.Decimal
	FreeShippingAt decimal.Decimal // zero disables free shipping
}

func (p StandardPolicy) Assess(subtotal decimal.Decimal, _ []orders.Line) (tax, shipping, discount decimal.Decimal) {
	tax = subtotal.Mul(p.TaxRate).Round(2)
	shipping = p.ShippingFlat
	if p.FreeShippingAt.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingAt) {
		shipping = decimal.Zero
	}
	return tax, shipping, decimal.Zero
}

// ComputeTotals sums the lines and applies the policy. The identity
// total = subtotal + tax + shipping - discount holds exactly; money never
// goes through floating point.
func ComputeTotals(lines []orders.Line, p Policy) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	tax, shipping, discount := p.Assess(subtotal, lines)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal.Add(tax).Add(shipping).Sub(discount),
	}
}
