// Package totals holds the pure arithmetic for line items and
// document-level financial fields. Every function is side-effect-free;
// callers recompute eagerly on each mutation so displayed figures are
// never stale relative to the last edit.
package totals

import (
	"github.com/shopspring/decimal"

	"example.com/backoffice/services/salesflow/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DocumentTotals are the document-level rollups over all line items.
type DocumentTotals struct {
	SubTotal      decimal.Decimal `json:"sub_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// LineAmount computes rate*qty + rate*qty*tax%/100 - discount.
func LineAmount(item models.LineItem) decimal.Decimal {
	base := item.Rate.Mul(item.Qty)
	tax := base.Mul(item.TaxPercent).Div(hundred)
	return base.Add(tax).Sub(item.Discount)
}

// Recalculate refreshes the Amount field of every item in place.
func Recalculate(items []models.LineItem) {
	for i := range items {
		items[i].Amount = LineAmount(items[i])
	}
}

// Calculate produces the document-level totals for a set of items.
func Calculate(items []models.LineItem) DocumentTotals {
	t := DocumentTotals{
		SubTotal:      decimal.Zero,
		TaxTotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		GrandTotal:    decimal.Zero,
	}
	for _, item := range items {
		base := item.Rate.Mul(item.Qty)
		t.SubTotal = t.SubTotal.Add(base)
		t.TaxTotal = t.TaxTotal.Add(base.Mul(item.TaxPercent).Div(hundred))
		t.DiscountTotal = t.DiscountTotal.Add(item.Discount)
	}
	t.GrandTotal = t.SubTotal.Add(t.TaxTotal).Sub(t.DiscountTotal)
	return t
}

// Balance computes totalInvoice - amountReceived. The sign is
// unconstrained; a negative balance represents overpayment and is not
// clamped.
func Balance(totalInvoice, amountReceived decimal.Decimal) decimal.Decimal {
	return totalInvoice.Sub(amountReceived)
}
