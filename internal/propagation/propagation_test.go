package propagation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/internal/models"
)

func quotedAggregate() *models.DocumentAggregate {
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.Quotation.CustomerName = "Acme Traders"
	agg.Steps.Quotation.CustomerAddress = "12 Market Road"
	agg.Steps.Quotation.CustomerEmail = "accounts@acme.example"
	agg.Steps.Quotation.CustomerPhone = "+91-11-5550100"
	agg.Steps.Quotation.CustomerRef = "CR-884"
	agg.Steps.Quotation.QuotationDate = "2026-03-01"
	return agg
}

func TestQuotationSeedsSalesOrder(t *testing.T) {
	agg := quotedAggregate()

	require.NoError(t, Propagate(models.StageQuotation, agg))

	require.Equal(t, "Acme Traders", agg.ShippingDetails.BillToCompanyName)
	require.Equal(t, "Acme Traders", agg.ShippingDetails.BillToName)
	require.Equal(t, "12 Market Road", agg.ShippingDetails.BillToAddress)
	require.Equal(t, "CR-884", agg.Steps.SalesOrder.CustomerNo)
	require.Equal(t, "2026-03-01", agg.Steps.SalesOrder.OrderDate)
}

func TestMergeIsNonDestructive(t *testing.T) {
	agg := quotedAggregate()
	agg.ShippingDetails.BillToName = "Existing Billing Contact"
	agg.Steps.SalesOrder.CustomerNo = "MANUAL-1"

	require.NoError(t, Propagate(models.StageQuotation, agg))

	// Populated destinations stay untouched; empty ones are filled once.
	require.Equal(t, "Existing Billing Contact", agg.ShippingDetails.BillToName)
	require.Equal(t, "MANUAL-1", agg.Steps.SalesOrder.CustomerNo)
	require.Equal(t, "Acme Traders", agg.ShippingDetails.BillToCompanyName)
}

func TestMergeIsIdempotent(t *testing.T) {
	agg := quotedAggregate()

	require.NoError(t, Propagate(models.StageQuotation, agg))
	agg.Steps.Quotation.CustomerName = "Renamed Later"
	require.NoError(t, Propagate(models.StageQuotation, agg))

	// The second run must not re-copy over an already-filled field.
	require.Equal(t, "Acme Traders", agg.ShippingDetails.BillToCompanyName)
}

func TestShipToIsNeverPropagated(t *testing.T) {
	agg := quotedAggregate()
	agg.ShippingDetails.ShipToName = "Upstream Ship Contact"
	agg.ShippingDetails.ShipToAddress = "Dock 4"

	for _, from := range []models.Stage{
		models.StageQuotation,
		models.StageSalesOrder,
		models.StageDeliveryChallan,
	} {
		require.NoError(t, Propagate(from, agg))
	}

	// Ship-to values exist upstream but no stage advance writes any
	// ship-to destination; the invoice customer block must not have
	// absorbed them either.
	require.NotEqual(t, "Upstream Ship Contact", agg.Steps.Invoice.CustomerName)
}

func TestSalesOrderSeedsChallan(t *testing.T) {
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.SalesOrder.SONo = "SO-2026-0042"
	agg.Steps.SalesOrder.OrderDate = "2026-03-02"

	require.NoError(t, Propagate(models.StageSalesOrder, agg))

	require.Equal(t, "SO-2026-0042", agg.Steps.DeliveryChallan.SalesOrderNo)
	require.Equal(t, "2026-03-02", agg.Steps.DeliveryChallan.ChallanDate)
}

func TestItemsCarryForwardWhenNextStageEmpty(t *testing.T) {
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.Quotation.Items = []models.LineItem{
		{ItemName: "Widget", Qty: decimal.NewFromInt(2), Rate: decimal.NewFromInt(100)},
	}

	require.NoError(t, Propagate(models.StageQuotation, agg))
	require.Len(t, agg.Steps.SalesOrder.Items, 1)
	require.Equal(t, "Widget", agg.Steps.SalesOrder.Items[0].ItemName)

	// An already-edited destination list is preserved.
	agg.Steps.DeliveryChallan.Items = []models.LineItem{{ItemName: "Replacement"}}
	require.NoError(t, Propagate(models.StageSalesOrder, agg))
	require.Len(t, agg.Steps.DeliveryChallan.Items, 1)
	require.Equal(t, "Replacement", agg.Steps.DeliveryChallan.Items[0].ItemName)
}

func TestInvoiceSeedsPaymentTotals(t *testing.T) {
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.Invoice.Items = []models.LineItem{
		{Rate: decimal.NewFromInt(100), Qty: decimal.NewFromInt(2), TaxPercent: decimal.NewFromInt(10), Discount: decimal.NewFromInt(5)},
		{Rate: decimal.NewFromInt(50), Qty: decimal.NewFromInt(1)},
	}
	agg.Steps.Invoice.PaymentMethod = "bank_transfer"
	agg.Steps.Payment.AmountReceived = decimal.NewFromInt(65)

	require.NoError(t, Propagate(models.StageInvoice, agg))

	require.True(t, agg.Steps.Payment.TotalInvoice.Equal(decimal.NewFromInt(265)),
		"total_invoice %s", agg.Steps.Payment.TotalInvoice)
	require.True(t, agg.Steps.Payment.Balance.Equal(decimal.NewFromInt(200)),
		"balance %s", agg.Steps.Payment.Balance)
	require.Equal(t, "bank_transfer", agg.Steps.Payment.PaymentMethod)
}

func TestPropagateFromPaymentFails(t *testing.T) {
	agg := models.NewDocumentAggregate("co-1")
	require.ErrorIs(t, Propagate(models.StagePayment, agg), ErrTerminalStage)
}
