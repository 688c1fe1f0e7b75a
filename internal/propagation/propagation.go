// Package propagation seeds the next step of the workflow from the
// step just saved. Copies are one-directional and non-destructive: a
// destination field is written only while it is still empty. The
// mapping tables are explicit per stage pair; nothing here runs as an
// ambient side effect of edits. The engine is invoked exactly once,
// at a save-and-advance transition.
package propagation

import (
	"github.com/pkg/errors"

	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/totals"
)

// ErrTerminalStage is returned when propagation is requested from the
// payment stage, which has no successor.
var ErrTerminalStage = errors.New("payment is the terminal stage, nothing to propagate into")

type fieldMapping struct {
	name string
	src  func(*models.DocumentAggregate) string
	dst  func(*models.DocumentAggregate) *string
}

// Stage-pair mapping tables, keyed by the source stage.
//
// Ship-to contact fields are deliberately absent from every table:
// the business rule is that ship-to details are re-entered manually at
// each stage even when an upstream value exists. Do not "fix" this
// without confirming with the document owners.
var tables = map[models.Stage][]fieldMapping{
	models.StageQuotation: {
		{
			name: "customer_name -> bill_to_company_name",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerName },
			dst:  func(a *models.DocumentAggregate) *string { return &a.ShippingDetails.BillToCompanyName },
		},
		{
			name: "customer_name -> bill_to_name",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerName },
			dst:  func(a *models.DocumentAggregate) *string { return &a.ShippingDetails.BillToName },
		},
		{
			name: "customer_address -> bill_to_address",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerAddress },
			dst:  func(a *models.DocumentAggregate) *string { return &a.ShippingDetails.BillToAddress },
		},
		{
			name: "customer_email -> bill_to_email",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerEmail },
			dst:  func(a *models.DocumentAggregate) *string { return &a.ShippingDetails.BillToEmail },
		},
		{
			name: "customer_phone -> bill_to_phone",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerPhone },
			dst:  func(a *models.DocumentAggregate) *string { return &a.ShippingDetails.BillToPhone },
		},
		{
			name: "customer_ref -> customer_no",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.CustomerRef },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.SalesOrder.CustomerNo },
		},
		{
			name: "quotation_date -> order_date",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Quotation.QuotationDate },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.SalesOrder.OrderDate },
		},
	},
	models.StageSalesOrder: {
		{
			name: "SO_no -> sales_order_no",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.SalesOrder.SONo },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.DeliveryChallan.SalesOrderNo },
		},
		{
			name: "order_date -> challan_date",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.SalesOrder.OrderDate },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.DeliveryChallan.ChallanDate },
		},
	},
	models.StageDeliveryChallan: {
		{
			name: "bill_to_name -> customer_name",
			src:  func(a *models.DocumentAggregate) string { return a.ShippingDetails.BillToName },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Invoice.CustomerName },
		},
		{
			name: "bill_to_address -> customer_address",
			src:  func(a *models.DocumentAggregate) string { return a.ShippingDetails.BillToAddress },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Invoice.CustomerAddress },
		},
		{
			name: "bill_to_email -> customer_email",
			src:  func(a *models.DocumentAggregate) string { return a.ShippingDetails.BillToEmail },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Invoice.CustomerEmail },
		},
		{
			name: "bill_to_phone -> customer_phone",
			src:  func(a *models.DocumentAggregate) string { return a.ShippingDetails.BillToPhone },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Invoice.CustomerPhone },
		},
		{
			name: "challan_date -> invoice_date",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.DeliveryChallan.ChallanDate },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Invoice.InvoiceDate },
		},
	},
	models.StageInvoice: {
		{
			name: "payment_method -> payment_method",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Invoice.PaymentMethod },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Payment.PaymentMethod },
		},
		{
			name: "payment_status -> payment_status",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Invoice.PaymentStatus },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Payment.PaymentStatus },
		},
		{
			name: "invoice_date -> payment_date",
			src:  func(a *models.DocumentAggregate) string { return a.Steps.Invoice.InvoiceDate },
			dst:  func(a *models.DocumentAggregate) *string { return &a.Steps.Payment.PaymentDate },
		},
	},
}

// Propagate seeds the successor of the given stage. Destination fields
// that already hold a value are left untouched.
func Propagate(from models.Stage, agg *models.DocumentAggregate) error {
	if from == models.StagePayment {
		return ErrTerminalStage
	}
	if !from.IsValid() {
		return errors.Errorf("unknown stage %q", from)
	}

	for _, m := range tables[from] {
		dst := m.dst(agg)
		if *dst != "" {
			continue
		}
		if v := m.src(agg); v != "" {
			*dst = v
		}
	}

	next, _ := from.Next()

	// Line items carry forward into the next stage when it has none
	// yet. Payment carries no items.
	if next != models.StagePayment && len(agg.StageItems(next)) == 0 {
		if src := agg.StageItems(from); len(src) > 0 {
			items := make([]models.LineItem, len(src))
			copy(items, src)
			agg.SetStageItems(next, items)
		}
	}

	// Advancing into payment seeds its financial fields from the
	// invoice totals, again without clobbering user-entered values.
	if from == models.StageInvoice {
		pay := &agg.Steps.Payment
		if pay.TotalInvoice.IsZero() {
			pay.TotalInvoice = totals.Calculate(agg.Steps.Invoice.Items).GrandTotal
		}
		pay.Balance = totals.Balance(pay.TotalInvoice, pay.AmountReceived)
	}

	return nil
}
