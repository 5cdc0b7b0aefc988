package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/orders"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func standardPolicy() StandardPolicy {
	return StandardPolicy{
		TaxRate:        d("0.10"),
		ShippingFlat:   d("9.99"),
		FreeShippingAt: d("100.00"),
	}
}

func TestSnapshotLine(t *testing.T) {
	item := catalog.Item{SKU: "WIDGET-1", Name: "Widget", UnitPrice: d("19.99")}

	line := SnapshotLine("ORD-AAAA0001", item, 3)

	assert.Equal(t, "ORD-AAAA0001", line.OrderID)
	assert.Equal(t, "WIDGET-1", line.SKU)
	assert.Equal(t, "Widget", line.Name)
	assert.True(t, line.UnitPrice.Equal(d("19.99")))
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, line.LineTotal.Equal(d("59.97")))
}

func TestSnapshotLine_ImmuneToCatalogChange(t *testing.T) {
	item := catalog.Item{SKU: "WIDGET-1", Name: "Widget", UnitPrice: d("10.00")}
	line := SnapshotLine("ORD-AAAA0001", item, 2)

	// A later catalog edit must not move the frozen line.
	item.UnitPrice = d("99.00")
	item.Name = "Renamed"

	assert.True(t, line.UnitPrice.Equal(d("10.00")))
	assert.True(t, line.LineTotal.Equal(d("20.00")))
	assert.Equal(t, "Widget", line.Name)
}

func TestComputeTotals_Identity(t *testing.T) {
	lines := []orders.Line{
		{LineTotal: d("19.98"), Quantity: 2},
		{LineTotal: d("35.50"), Quantity: 1},
	}

	totals := ComputeTotals(lines, standardPolicy())

	assert.True(t, totals.Subtotal.Equal(d("55.48")))
	assert.True(t, totals.Tax.Equal(d("5.55"))) // 5.548 rounded to cents
	assert.True(t, totals.Shipping.Equal(d("9.99")))
	assert.True(t, totals.Discount.Equal(decimal.Zero))
	assert.True(t, totals.Total.Equal(d("71.02")))

	// total = subtotal + tax + shipping - discount, exactly.
	sum := totals.Subtotal.Add(totals.Tax).Add(totals.Shipping).Sub(totals.Discount)
	assert.True(t, totals.Total.Equal(sum))
}

func TestComputeTotals_FreeShippingAtThreshold(t *testing.T) {
	p := standardPolicy()

	under := ComputeTotals([]orders.Line{{LineTotal: d("99.99")}}, p)
	assert.True(t, under.Shipping.Equal(d("9.99")))

	exact := ComputeTotals([]orders.Line{{LineTotal: d("100.00")}}, p)
	assert.True(t, exact.Shipping.Equal(decimal.Zero))

	over := ComputeTotals([]orders.Line{{LineTotal: d("250.00")}}, p)
	assert.True(t, over.Shipping.Equal(decimal.Zero))
}

func TestComputeTotals_ZeroThresholdDisablesFreeShipping(t *testing.T) {
	p := StandardPolicy{TaxRate: d("0.10"), ShippingFlat: d("9.99")}

	totals := ComputeTotals([]orders.Line{{LineTotal: d("500.00")}}, p)
	assert.True(t, totals.Shipping.Equal(d("9.99")))
}

func TestComputeTotals_NoFloatDrift(t *testing.T) {
	// The classic 0.1 + 0.2 case stays exact in decimal arithmetic.
	lines := []orders.Line{
		{LineTotal: d("0.10")},
		{LineTotal: d("0.20")},
	}
	p := StandardPolicy{TaxRate: decimal.Zero, ShippingFlat: decimal.Zero}

	totals := ComputeTotals(lines, p)
	require.True(t, totals.Subtotal.Equal(d("0.30")))
	assert.Equal(t, "0.3", totals.Total.String())
}
