package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stage identifies one of the five sequential document types in the
// sales workflow. The string values double as the wire keys used in
// the steps block and the current_step field.
type Stage string

const (
	StageQuotation       Stage = "quotation"
	StageSalesOrder      Stage = "sales_order"
	StageDeliveryChallan Stage = "delivery_challan"
	StageInvoice         Stage = "invoice"
	StagePayment         Stage = "payment"
)

// StageOrder lists the stages in workflow order.
var StageOrder = []Stage{
	StageQuotation,
	StageSalesOrder,
	StageDeliveryChallan,
	StageInvoice,
	StagePayment,
}

// IsValid checks whether the stage is one of the five known stages.
func (s Stage) IsValid() bool {
	switch s {
	case StageQuotation, StageSalesOrder, StageDeliveryChallan, StageInvoice, StagePayment:
		return true
	}
	return false
}

// Index returns the position of the stage in the workflow order, or -1.
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the following stage. ok is false for Payment (terminal)
// and for unknown stages.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx >= len(StageOrder)-1 {
		return "", false
	}
	return StageOrder[idx+1], true
}

func (s Stage) String() string {
	return string(s)
}

// StepStatus is the persisted completion state of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
)

// LineItem is one priced line of a document. Amount is always derived:
// rate*qty + rate*qty*tax%/100 - discount, recomputed on every rate or
// quantity change and never read back from a stale value.
type LineItem struct {
	ItemName    string          `json:"item_name"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
	Discount    decimal.Decimal `json:"discount"`
	Amount      decimal.Decimal `json:"amount"`
	UOM         string          `json:"uom"`
	HSN         string          `json:"hsn"`
	SKU         string          `json:"sku"`
	Barcode     string          `json:"barcode"`
	WarehouseID string          `json:"warehouse_id"`
}

// CompanyInfo is the issuing company's letterhead and bank block.
// The company profile provider is the single writer for these fields.
type CompanyInfo struct {
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	CompanyEmail   string `json:"company_email"`
	CompanyPhone   string `json:"company_phone"`
	LogoURL        string `json:"logo_url"`
	BankName       string `json:"bank_name"`
	AccountNo      string `json:"account_no"`
	AccountHolder  string `json:"account_holder"`
	IFSCCode       string `json:"ifsc_code"`
	Terms          string `json:"terms"`
}

// ShippingDetails holds the bill-to and ship-to contact blocks shared
// across the document.
type ShippingDetails struct {
	BillToName          string `json:"bill_to_name"`
	BillToAddress       string `json:"bill_to_address"`
	BillToEmail         string `json:"bill_to_email"`
	BillToPhone         string `json:"bill_to_phone"`
	BillToAttentionName string `json:"bill_to_attention_name"`
	BillToCompanyName   string `json:"bill_to_company_name"`
	ShipToName          string `json:"ship_to_name"`
	ShipToAddress       string `json:"ship_to_address"`
	ShipToEmail         string `json:"ship_to_email"`
	ShipToPhone         string `json:"ship_to_phone"`
	ShipToAttentionName string `json:"ship_to_attention_name"`
	ShipToCompanyName   string `json:"ship_to_company_name"`
}

// QuotationStep is the first stage record. The qoutation_to_* key
// spelling is the upstream wire contract and is kept as-is.
type QuotationStep struct {
	QuotationNo     string     `json:"quotation_no"`
	ManualQuoNo     string     `json:"manual_quo_no"`
	QuotationDate   string     `json:"quotation_date"`
	ValidTill       string     `json:"valid_till"`
	CustomerName    string     `json:"qoutation_to_customer_name"`
	CustomerAddress string     `json:"qoutation_to_customer_address"`
	CustomerEmail   string     `json:"qoutation_to_customer_email"`
	CustomerPhone   string     `json:"qoutation_to_customer_phone"`
	Notes           string     `json:"notes"`
	CustomerRef     string     `json:"customer_ref"`
	Status          StepStatus `json:"status"`
	Items           []LineItem `json:"-"`
}

// SalesOrderStep is the second stage record.
type SalesOrderStep struct {
	SONo        string     `json:"SO_no"`
	ManualRefNo string     `json:"manual_ref_no"`
	OrderDate   string     `json:"order_date"`
	CustomerNo  string     `json:"customer_no"`
	Status      StepStatus `json:"status"`
	Items       []LineItem `json:"-"`
}

// DeliveryChallanStep is the third stage record.
type DeliveryChallanStep struct {
	ChallanNo       string     `json:"challan_no"`
	ManualChallanNo string     `json:"manual_challan_no"`
	ChallanDate     string     `json:"challan_date"`
	VehicleNo       string     `json:"vehicle_no"`
	DriverName      string     `json:"driver_name"`
	DriverPhone     string     `json:"driver_phone"`
	SalesOrderNo    string     `json:"sales_order_no"`
	Status          StepStatus `json:"status"`
	Items           []LineItem `json:"-"`
}

// InvoiceStep is the fourth stage record.
type InvoiceStep struct {
	InvoiceNo       string     `json:"invoice_no"`
	ManualInvoiceNo string     `json:"manual_invoice_no"`
	InvoiceDate     string     `json:"invoice_date"`
	DueDate         string     `json:"due_date"`
	PaymentStatus   string     `json:"payment_status"`
	PaymentMethod   string     `json:"payment_method"`
	Note            string     `json:"note"`
	CustomerName    string     `json:"customer_name"`
	CustomerAddress string     `json:"customer_address"`
	CustomerEmail   string     `json:"customer_email"`
	CustomerPhone   string     `json:"customer_phone"`
	Status          StepStatus `json:"status"`
	Items           []LineItem `json:"-"`
}

// PaymentStep is the terminal stage record. Balance is always
// TotalInvoice - AmountReceived and is never edited directly.
type PaymentStep struct {
	PaymentNo       string          `json:"payment_no"`
	ManualPaymentNo string          `json:"manual_payment_no"`
	PaymentDate     string          `json:"payment_date"`
	AmountReceived  decimal.Decimal `json:"amount_received"`
	TotalInvoice    decimal.Decimal `json:"total_invoice"`
	Balance         decimal.Decimal `json:"balance"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentNote     string          `json:"payment_note"`
	Status          StepStatus      `json:"status"`
}

// Steps groups the five step records under their wire keys.
type Steps struct {
	Quotation       QuotationStep       `json:"quotation"`
	SalesOrder      SalesOrderStep      `json:"sales_order"`
	DeliveryChallan DeliveryChallanStep `json:"delivery_challan"`
	Invoice         InvoiceStep         `json:"invoice"`
	Payment         PaymentStep         `json:"payment"`
}

// AdditionalInfo carries attachments and signatures. The workflow
// engine treats these as opaque blobs.
type AdditionalInfo struct {
	Files         []json.RawMessage `json:"files"`
	SignatureURL  string            `json:"signature_url"`
	PhotoURL      string            `json:"photo_url"`
	AttachmentURL string            `json:"attachment_url"`
}

// DocumentAggregate is the full multi-stage workflow record and the
// unit of persistence. ID is nil until the first successful create.
type DocumentAggregate struct {
	ID              *uuid.UUID      `json:"id,omitempty"`
	CompanyID       string          `json:"company_id"`
	CompanyInfo     CompanyInfo     `json:"company_info"`
	ShippingDetails ShippingDetails `json:"shipping_details"`
	Items           []LineItem      `json:"items"`
	Steps           Steps           `json:"steps"`
	AdditionalInfo  AdditionalInfo  `json:"additional_info"`
	CurrentStep     Stage           `json:"current_step"`
}

// NewDocumentAggregate builds an empty aggregate positioned at the
// quotation stage.
func NewDocumentAggregate(companyID string) *DocumentAggregate {
	return &DocumentAggregate{
		CompanyID:   companyID,
		CurrentStep: StageQuotation,
		Steps: Steps{
			Quotation:       QuotationStep{Status: StepStatusPending},
			SalesOrder:      SalesOrderStep{Status: StepStatusPending},
			DeliveryChallan: DeliveryChallanStep{Status: StepStatusPending},
			Invoice:         InvoiceStep{Status: StepStatusPending},
			Payment:         PaymentStep{Status: StepStatusPending},
		},
	}
}

// StageItems returns the line items held by the given stage. Payment
// carries no items.
func (a *DocumentAggregate) StageItems(stage Stage) []LineItem {
	switch stage {
	case StageQuotation:
		return a.Steps.Quotation.Items
	case StageSalesOrder:
		return a.Steps.SalesOrder.Items
	case StageDeliveryChallan:
		return a.Steps.DeliveryChallan.Items
	case StageInvoice:
		return a.Steps.Invoice.Items
	}
	return nil
}

// SetStageItems replaces the line items held by the given stage.
func (a *DocumentAggregate) SetStageItems(stage Stage, items []LineItem) {
	switch stage {
	case StageQuotation:
		a.Steps.Quotation.Items = items
	case StageSalesOrder:
		a.Steps.SalesOrder.Items = items
	case StageDeliveryChallan:
		a.Steps.DeliveryChallan.Items = items
	case StageInvoice:
		a.Steps.Invoice.Items = items
	}
}

// StageStatus returns the persisted status of the given stage.
func (a *DocumentAggregate) StageStatus(stage Stage) StepStatus {
	switch stage {
	case StageQuotation:
		return a.Steps.Quotation.Status
	case StageSalesOrder:
		return a.Steps.SalesOrder.Status
	case StageDeliveryChallan:
		return a.Steps.DeliveryChallan.Status
	case StageInvoice:
		return a.Steps.Invoice.Status
	case StagePayment:
		return a.Steps.Payment.Status
	}
	return ""
}

// SetStageStatus updates the persisted status of the given stage.
func (a *DocumentAggregate) SetStageStatus(stage Stage, status StepStatus) {
	switch stage {
	case StageQuotation:
		a.Steps.Quotation.Status = status
	case StageSalesOrder:
		a.Steps.SalesOrder.Status = status
	case StageDeliveryChallan:
		a.Steps.DeliveryChallan.Status = status
	case StageInvoice:
		a.Steps.Invoice.Status = status
	case StagePayment:
		a.Steps.Payment.Status = status
	}
}

// ManualReference returns the user-entered business number for the
// given stage.
func (a *DocumentAggregate) ManualReference(stage Stage) string {
	switch stage {
	case StageQuotation:
		return a.Steps.Quotation.ManualQuoNo
	case StageSalesOrder:
		return a.Steps.SalesOrder.ManualRefNo
	case StageDeliveryChallan:
		return a.Steps.DeliveryChallan.ManualChallanNo
	case StageInvoice:
		return a.Steps.Invoice.ManualInvoiceNo
	case StagePayment:
		return a.Steps.Payment.ManualPaymentNo
	}
	return ""
}

// SetManualReference sets the user-entered business number for the
// given stage.
func (a *DocumentAggregate) SetManualReference(stage Stage, ref string) {
	switch stage {
	case StageQuotation:
		a.Steps.Quotation.ManualQuoNo = ref
	case StageSalesOrder:
		a.Steps.SalesOrder.ManualRefNo = ref
	case StageDeliveryChallan:
		a.Steps.DeliveryChallan.ManualChallanNo = ref
	case StageInvoice:
		a.Steps.Invoice.ManualInvoiceNo = ref
	case StagePayment:
		a.Steps.Payment.ManualPaymentNo = ref
	}
}

// AutoReference returns a pointer to the system-generated reference for
// the given stage so callers can seed it in place.
func (a *DocumentAggregate) AutoReference(stage Stage) *string {
	switch stage {
	case StageQuotation:
		return &a.Steps.Quotation.QuotationNo
	case StageSalesOrder:
		return &a.Steps.SalesOrder.SONo
	case StageDeliveryChallan:
		return &a.Steps.DeliveryChallan.ChallanNo
	case StageInvoice:
		return &a.Steps.Invoice.InvoiceNo
	case StagePayment:
		return &a.Steps.Payment.PaymentNo
	}
	return nil
}

func cloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// Clone returns a deep copy of the aggregate. Used to snapshot state
// for a persistence call so user edits arriving while the call is in
// flight cannot tear the payload.
func (a *DocumentAggregate) Clone() *DocumentAggregate {
	b := *a
	if a.ID != nil {
		id := *a.ID
		b.ID = &id
	}
	b.Items = cloneItems(a.Items)
	b.Steps.Quotation.Items = cloneItems(a.Steps.Quotation.Items)
	b.Steps.SalesOrder.Items = cloneItems(a.Steps.SalesOrder.Items)
	b.Steps.DeliveryChallan.Items = cloneItems(a.Steps.DeliveryChallan.Items)
	b.Steps.Invoice.Items = cloneItems(a.Steps.Invoice.Items)
	if a.AdditionalInfo.Files != nil {
		b.AdditionalInfo.Files = append([]json.RawMessage(nil), a.AdditionalInfo.Files...)
	}
	return &b
}

// FlattenItems resolves the authoritative top-level items array: the
// current stage's items when present, falling back to the invoice
// stage.
func (a *DocumentAggregate) FlattenItems() []LineItem {
	if items := a.StageItems(a.CurrentStep); len(items) > 0 {
		return items
	}
	return a.Steps.Invoice.Items
}

// DocumentRecord is the gorm entity backing a persisted aggregate.
// The nested blocks are stored as jsonb in the shape they travel on
// the wire; a few columns are lifted out for querying.
type DocumentRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
	CompanyID       string          `gorm:"index;not null" json:"company_id"`
	CurrentStep     string          `gorm:"not null" json:"current_step"`
	CustomerName    string          `gorm:"index" json:"customer_name"`
	ManualInvoiceNo string          `gorm:"index" json:"manual_invoice_no"`
	GrandTotal      decimal.Decimal `gorm:"type:numeric" json:"grand_total"`
	Submitted       bool            `gorm:"not null;default:false" json:"submitted"`
	SubmittedAt     *time.Time      `json:"submitted_at"`
	SearchIndexed   bool            `gorm:"not null;default:false" json:"search_indexed"`
	CompanyInfo     []byte          `gorm:"type:jsonb" json:"-"`
	ShippingDetails []byte          `gorm:"type:jsonb" json:"-"`
	Items           []byte          `gorm:"type:jsonb" json:"-"`
	Steps           []byte          `gorm:"type:jsonb" json:"-"`
	AdditionalInfo  []byte          `gorm:"type:jsonb" json:"-"`
}

// Aggregate decodes the record's jsonb blocks back into an aggregate.
func (r *DocumentRecord) Aggregate() (*DocumentAggregate, error) {
	agg := NewDocumentAggregate(r.CompanyID)
	id := r.ID
	agg.ID = &id
	agg.CurrentStep = Stage(r.CurrentStep)

	if len(r.CompanyInfo) > 0 {
		if err := json.Unmarshal(r.CompanyInfo, &agg.CompanyInfo); err != nil {
			return nil, errors.Wrap(err, "failed to decode company_info")
		}
	}
	if len(r.ShippingDetails) > 0 {
		if err := json.Unmarshal(r.ShippingDetails, &agg.ShippingDetails); err != nil {
			return nil, errors.Wrap(err, "failed to decode shipping_details")
		}
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &agg.Items); err != nil {
			return nil, errors.Wrap(err, "failed to decode items")
		}
	}
	if len(r.Steps) > 0 {
		if err := json.Unmarshal(r.Steps, &agg.Steps); err != nil {
			return nil, errors.Wrap(err, "failed to decode steps")
		}
	}
	if len(r.AdditionalInfo) > 0 {
		if err := json.Unmarshal(r.AdditionalInfo, &agg.AdditionalInfo); err != nil {
			return nil, errors.Wrap(err, "failed to decode additional_info")
		}
	}
	return agg, nil
}

// ApplyAggregate encodes the aggregate into the record's jsonb blocks
// and refreshes the lifted query columns. The record ID is left alone.
func (r *DocumentRecord) ApplyAggregate(agg *DocumentAggregate, grandTotal decimal.Decimal) error {
	var err error
	if r.CompanyInfo, err = json.Marshal(agg.CompanyInfo); err != nil {
		return errors.Wrap(err, "failed to encode company_info")
	}
	if r.ShippingDetails, err = json.Marshal(agg.ShippingDetails); err != nil {
		return errors.Wrap(err, "failed to encode shipping_details")
	}
	if r.Items, err = json.Marshal(agg.Items); err != nil {
		return errors.Wrap(err, "failed to encode items")
	}
	if r.Steps, err = json.Marshal(agg.Steps); err != nil {
		return errors.Wrap(err, "failed to encode steps")
	}
	if r.AdditionalInfo, err = json.Marshal(agg.AdditionalInfo); err != nil {
		return errors.Wrap(err, "failed to encode additional_info")
	}

	r.CompanyID = agg.CompanyID
	r.CurrentStep = string(agg.CurrentStep)
	r.CustomerName = agg.Steps.Quotation.CustomerName
	r.ManualInvoiceNo = agg.Steps.Invoice.ManualInvoiceNo
	r.GrandTotal = grandTotal

	submitted := agg.Steps.Payment.Status == StepStatusCompleted
	if submitted && !r.Submitted {
		now := time.Now()
		r.SubmittedAt = &now
		// A re-submitted document goes back through the search sweep.
		r.SearchIndexed = false
	}
	r.Submitted = submitted
	return nil
}

// CustomerRow is a customer master record maintained by the partner
// module. Payload carries the raw upstream JSON, whose key names vary
// by writer; the gateway normalizes it before use.
type CustomerRow struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CompanyID string         `gorm:"index;not null" json:"company_id"`
	Payload   []byte         `gorm:"type:jsonb" json:"payload"`
}

// ProductRow is a product master record with a raw upstream payload.
type ProductRow struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CompanyID string         `gorm:"index;not null" json:"company_id"`
	Payload   []byte         `gorm:"type:jsonb" json:"payload"`
}

// WarehouseRow is a warehouse master record with a raw upstream payload.
type WarehouseRow struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CompanyID string         `gorm:"index;not null" json:"company_id"`
	Payload   []byte         `gorm:"type:jsonb" json:"payload"`
}

// CompanyProfileRow is the company profile record keyed by the company
// identifier supplied by the session collaborator.
type CompanyProfileRow struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CompanyID string         `gorm:"uniqueIndex;not null" json:"company_id"`
	Payload   []byte         `gorm:"type:jsonb" json:"payload"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&DocumentRecord{},
		&CustomerRow{},
		&ProductRow{},
		&WarehouseRow{},
		&CompanyProfileRow{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
