package totals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/internal/models"
)

func item(rate, qty, tax, discount int64) models.LineItem {
	return models.LineItem{
		Rate:       decimal.NewFromInt(rate),
		Qty:        decimal.NewFromInt(qty),
		TaxPercent: decimal.NewFromInt(tax),
		Discount:   decimal.NewFromInt(discount),
	}
}

func TestLineAmount(t *testing.T) {
	// 100*2 + 100*2*10/100 - 5 = 215
	got := LineAmount(item(100, 2, 10, 5))
	require.True(t, got.Equal(decimal.NewFromInt(215)), "got %s", got)

	// No tax, no discount.
	got = LineAmount(item(50, 1, 0, 0))
	require.True(t, got.Equal(decimal.NewFromInt(50)), "got %s", got)
}

func TestCalculateDocumentTotals(t *testing.T) {
	items := []models.LineItem{
		item(100, 2, 10, 5),
		item(50, 1, 0, 0),
	}

	got := Calculate(items)
	require.True(t, got.SubTotal.Equal(decimal.NewFromInt(250)), "subTotal %s", got.SubTotal)
	require.True(t, got.TaxTotal.Equal(decimal.NewFromInt(20)), "taxTotal %s", got.TaxTotal)
	require.True(t, got.DiscountTotal.Equal(decimal.NewFromInt(5)), "discountTotal %s", got.DiscountTotal)
	require.True(t, got.GrandTotal.Equal(decimal.NewFromInt(265)), "grandTotal %s", got.GrandTotal)

	// Removing the second item.
	got = Calculate(items[:1])
	require.True(t, got.SubTotal.Equal(decimal.NewFromInt(200)), "subTotal %s", got.SubTotal)
	require.True(t, got.TaxTotal.Equal(decimal.NewFromInt(20)), "taxTotal %s", got.TaxTotal)
	require.True(t, got.DiscountTotal.Equal(decimal.NewFromInt(5)), "discountTotal %s", got.DiscountTotal)
	require.True(t, got.GrandTotal.Equal(decimal.NewFromInt(215)), "grandTotal %s", got.GrandTotal)
}

func TestCalculateEmpty(t *testing.T) {
	got := Calculate(nil)
	require.True(t, got.GrandTotal.IsZero())
	require.True(t, got.SubTotal.IsZero())
}

func TestRecalculateRefreshesAmounts(t *testing.T) {
	items := []models.LineItem{item(100, 2, 10, 5)}
	// Simulate a stale cached amount before a rate change.
	items[0].Amount = decimal.NewFromInt(999)
	items[0].Rate = decimal.NewFromInt(200)

	Recalculate(items)
	// 200*2 + 200*2*10/100 - 5 = 435
	require.True(t, items[0].Amount.Equal(decimal.NewFromInt(435)), "got %s", items[0].Amount)
}

func TestBalance(t *testing.T) {
	got := Balance(decimal.NewFromInt(1000), decimal.NewFromInt(400))
	require.True(t, got.Equal(decimal.NewFromInt(600)), "got %s", got)

	// Overpayment is allowed, not clamped.
	got = Balance(decimal.NewFromInt(1000), decimal.NewFromInt(1200))
	require.True(t, got.Equal(decimal.NewFromInt(-200)), "got %s", got)
}
