// Package workflow owns the sequential sales-document state machine:
// Quotation -> SalesOrder -> DeliveryChallan -> Invoice -> Payment.
// Movement is forward-only, one stage per transition. Reference
// seeding, totals and field propagation are invoked as explicit
// one-shot calls at transition points, never as side effects of
// rendering or unrelated edits.
package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/backoffice/services/salesflow/internal/gateway"
	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/propagation"
	"example.com/backoffice/services/salesflow/internal/totals"
)

// Capabilities is the explicit permission set handed to a session by
// the identity collaborator. The engine never reads permissions from
// ambient state.
type Capabilities struct {
	CanCreate bool `json:"can_create"`
	CanView   bool `json:"can_view"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
}

// StepValidation describes the visible validation state of one step.
// Attempted latches on the first failed save and is never cleared, so
// a field error stays visible even after unrelated edits.
type StepValidation struct {
	Attempted        bool   `json:"attempted"`
	MissingManualRef bool   `json:"missing_manual_ref"`
	ErrorVisible     bool   `json:"error_visible"`
	Field            string `json:"field,omitempty"`
}

// State is a point-in-time snapshot of a machine for callers.
type State struct {
	DocumentID  *uuid.UUID                          `json:"document_id,omitempty"`
	CurrentStep models.Stage                        `json:"current_step"`
	Complete    bool                                `json:"complete"`
	Totals      totals.DocumentTotals               `json:"totals"`
	Aggregate   *models.DocumentAggregate           `json:"aggregate"`
	Validation  map[models.Stage]StepValidation     `json:"validation"`
}

// Machine drives one document through the workflow. All methods are
// safe for concurrent use; the in-flight guard serializes transitions
// per document while leaving field edits free to land between them.
type Machine struct {
	gw  gateway.PersistenceGateway
	gen *numbering.Generator

	mu        sync.Mutex
	agg       *models.DocumentAggregate
	docID     uuid.UUID
	caps      Capabilities
	attempted map[models.Stage]bool
	inFlight  bool
	complete  bool
	closed    bool
}

// NewMachine opens a machine over a blank aggregate with every stage's
// auto reference seeded.
func NewMachine(gw gateway.PersistenceGateway, gen *numbering.Generator, companyID string, caps Capabilities) *Machine {
	agg := models.NewDocumentAggregate(companyID)
	gen.SeedAll(agg)
	return &Machine{
		gw:        gw,
		gen:       gen,
		agg:       agg,
		caps:      caps,
		attempted: make(map[models.Stage]bool),
	}
}

// State returns a snapshot of the machine.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	validation := make(map[models.Stage]StepValidation, len(models.StageOrder))
	for _, stage := range models.StageOrder {
		missing := m.agg.ManualReference(stage) == ""
		attempted := m.attempted[stage]
		validation[stage] = StepValidation{
			Attempted:        attempted,
			MissingManualRef: missing,
			ErrorVisible:     attempted && missing,
			Field:            manualRefField(stage),
		}
	}

	var docID *uuid.UUID
	if m.docID != uuid.Nil {
		id := m.docID
		docID = &id
	}

	agg := m.agg.Clone()
	agg.Items = agg.FlattenItems()

	return State{
		DocumentID:  docID,
		CurrentStep: m.agg.CurrentStep,
		Complete:    m.complete,
		Totals:      totals.Calculate(agg.Items),
		Aggregate:   agg,
		Validation:  validation,
	}
}

// StepPatch is a sparse edit of the current step. Only non-nil fields
// are applied; fields that do not belong to the current stage are
// ignored, mirroring how the form binds one stage at a time.
type StepPatch struct {
	ManualRef       *string          `json:"manual_ref,omitempty"`
	Date            *string          `json:"date,omitempty"`
	ValidTill       *string          `json:"valid_till,omitempty"`
	CustomerName    *string          `json:"customer_name,omitempty"`
	CustomerAddress *string          `json:"customer_address,omitempty"`
	CustomerEmail   *string          `json:"customer_email,omitempty"`
	CustomerPhone   *string          `json:"customer_phone,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	CustomerRef     *string          `json:"customer_ref,omitempty"`
	CustomerNo      *string          `json:"customer_no,omitempty"`
	VehicleNo       *string          `json:"vehicle_no,omitempty"`
	DriverName      *string          `json:"driver_name,omitempty"`
	DriverPhone     *string          `json:"driver_phone,omitempty"`
	DueDate         *string          `json:"due_date,omitempty"`
	PaymentStatus   *string          `json:"payment_status,omitempty"`
	PaymentMethod   *string          `json:"payment_method,omitempty"`
	Note            *string          `json:"note,omitempty"`
	AmountReceived  *decimal.Decimal `json:"amount_received,omitempty"`
}

func apply(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// UpdateStep applies a patch to the current step. Financial fields are
// recomputed eagerly so displayed values never go stale.
func (m *Machine) UpdateStep(patch StepPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.complete {
		return ErrWorkflowComplete
	}
	if !m.caps.CanUpdate {
		return ErrPermissionDenied
	}

	if patch.ManualRef != nil {
		m.agg.SetManualReference(m.agg.CurrentStep, *patch.ManualRef)
	}

	switch m.agg.CurrentStep {
	case models.StageQuotation:
		q := &m.agg.Steps.Quotation
		apply(&q.QuotationDate, patch.Date)
		apply(&q.ValidTill, patch.ValidTill)
		apply(&q.CustomerName, patch.CustomerName)
		apply(&q.CustomerAddress, patch.CustomerAddress)
		apply(&q.CustomerEmail, patch.CustomerEmail)
		apply(&q.CustomerPhone, patch.CustomerPhone)
		apply(&q.Notes, patch.Notes)
		apply(&q.CustomerRef, patch.CustomerRef)
	case models.StageSalesOrder:
		so := &m.agg.Steps.SalesOrder
		apply(&so.OrderDate, patch.Date)
		apply(&so.CustomerNo, patch.CustomerNo)
	case models.StageDeliveryChallan:
		dc := &m.agg.Steps.DeliveryChallan
		apply(&dc.ChallanDate, patch.Date)
		apply(&dc.VehicleNo, patch.VehicleNo)
		apply(&dc.DriverName, patch.DriverName)
		apply(&dc.DriverPhone, patch.DriverPhone)
	case models.StageInvoice:
		inv := &m.agg.Steps.Invoice
		apply(&inv.InvoiceDate, patch.Date)
		apply(&inv.DueDate, patch.DueDate)
		apply(&inv.PaymentStatus, patch.PaymentStatus)
		apply(&inv.PaymentMethod, patch.PaymentMethod)
		apply(&inv.Note, patch.Note)
		apply(&inv.CustomerName, patch.CustomerName)
		apply(&inv.CustomerAddress, patch.CustomerAddress)
		apply(&inv.CustomerEmail, patch.CustomerEmail)
		apply(&inv.CustomerPhone, patch.CustomerPhone)
	case models.StagePayment:
		pay := &m.agg.Steps.Payment
		apply(&pay.PaymentDate, patch.Date)
		apply(&pay.PaymentStatus, patch.PaymentStatus)
		apply(&pay.PaymentMethod, patch.PaymentMethod)
		apply(&pay.PaymentNote, patch.Note)
		if patch.AmountReceived != nil {
			pay.AmountReceived = *patch.AmountReceived
			pay.Balance = totals.Balance(pay.TotalInvoice, pay.AmountReceived)
		}
	}

	return nil
}

// SetItems replaces the current stage's line items. Line amounts are
// recomputed before the items are stored; the flattened items array
// follows.
func (m *Machine) SetItems(items []models.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.complete {
		return ErrWorkflowComplete
	}
	if !m.caps.CanUpdate {
		return ErrPermissionDenied
	}
	if m.agg.CurrentStep == models.StagePayment {
		return ErrNoItemsAtPayment
	}

	totals.Recalculate(items)
	m.agg.SetStageItems(m.agg.CurrentStep, items)
	m.agg.Items = m.agg.FlattenItems()
	return nil
}

// SetShipping replaces the aggregate's shipping details block.
func (m *Machine) SetShipping(details models.ShippingDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.complete {
		return ErrWorkflowComplete
	}
	if !m.caps.CanUpdate {
		return ErrPermissionDenied
	}
	m.agg.ShippingDetails = details
	return nil
}

// SetCompanyInfo writes the aggregate's company_info block. The
// company profile provider is the only caller; nothing else writes
// branding fields.
func (m *Machine) SetCompanyInfo(info models.CompanyInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	m.agg.CompanyInfo = info
	return nil
}

// Skip advances the pointer by one stage with no validation, no
// propagation and no network traffic.
func (m *Machine) Skip() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.complete {
		return ErrWorkflowComplete
	}
	if m.inFlight {
		return ErrTransitionInFlight
	}

	next, ok := m.agg.CurrentStep.Next()
	if !ok {
		return ErrTerminalStage
	}
	m.agg.CurrentStep = next
	return nil
}

// beginPersist performs the shared pre-flight for persisting
// transitions: closed/complete/in-flight checks, the one-shot
// validation latch, capability checks, and the snapshot handed to the
// gateway. The caller receives the snapshot with the in-flight flag
// already raised and must call endPersist (or endPersistLocked under
// the lock) exactly once.
func (m *Machine) beginPersist(markCompleted bool) (*models.DocumentAggregate, uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, uuid.Nil, ErrSessionClosed
	}
	if m.complete {
		return nil, uuid.Nil, ErrWorkflowComplete
	}
	if m.inFlight {
		return nil, uuid.Nil, ErrTransitionInFlight
	}

	cur := m.agg.CurrentStep
	m.attempted[cur] = true
	if m.agg.ManualReference(cur) == "" {
		return nil, uuid.Nil, &ValidationError{Stage: cur, Field: manualRefField(cur)}
	}

	if m.docID == uuid.Nil {
		if !m.caps.CanCreate {
			return nil, uuid.Nil, ErrPermissionDenied
		}
	} else if !m.caps.CanUpdate {
		return nil, uuid.Nil, ErrPermissionDenied
	}

	m.agg.Items = m.agg.FlattenItems()
	snapshot := m.agg.Clone()
	if markCompleted {
		snapshot.SetStageStatus(cur, models.StepStatusCompleted)
	}
	m.inFlight = true
	return snapshot, m.docID, nil
}

// endPersist lowers the in-flight flag and applies the gateway
// outcome. Responses arriving after the session closed are dropped.
func (m *Machine) endPersist(newID uuid.UUID, callErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endPersistLocked(newID, callErr)
}

// endPersistLocked is endPersist with m.mu already held. Transitions
// that mutate state after a successful persist (pointer advance,
// completion) must do so in the same critical section that lowers the
// flag, so no other transition can slip in between.
func (m *Machine) endPersistLocked(newID uuid.UUID, callErr error) error {
	m.inFlight = false
	if m.closed {
		return ErrSessionClosed
	}
	if callErr != nil {
		return callErr
	}
	if m.docID == uuid.Nil {
		m.docID = newID
		id := newID
		m.agg.ID = &id
	}
	return nil
}

func (m *Machine) callGateway(ctx context.Context, id uuid.UUID, snapshot *models.DocumentAggregate) (uuid.UUID, error) {
	if id == uuid.Nil {
		return m.gw.Create(ctx, snapshot)
	}
	return m.gw.Update(ctx, id, snapshot)
}

// SaveDraft validates the current step's manual reference and persists
// the full aggregate tagged with the current stage. The pointer does
// not move. On gateway failure local state is left untouched and the
// caller may retry.
func (m *Machine) SaveDraft(ctx context.Context) error {
	snapshot, id, err := m.beginPersist(false)
	if err != nil {
		return err
	}
	newID, callErr := m.callGateway(ctx, id, snapshot)
	return m.endPersist(newID, callErr)
}

// SaveAndAdvance persists like SaveDraft, and on success marks the
// current step completed, propagates shared fields into the next step
// and advances the pointer. On failure nothing moves.
func (m *Machine) SaveAndAdvance(ctx context.Context) error {
	m.mu.Lock()
	if _, ok := m.agg.CurrentStep.Next(); !ok {
		m.mu.Unlock()
		return ErrTerminalStage
	}
	m.mu.Unlock()

	snapshot, id, err := m.beginPersist(true)
	if err != nil {
		return err
	}
	newID, callErr := m.callGateway(ctx, id, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.endPersistLocked(newID, callErr); err != nil {
		return err
	}
	cur := m.agg.CurrentStep
	m.agg.SetStageStatus(cur, models.StepStatusCompleted)
	if err := propagation.Propagate(cur, m.agg); err != nil {
		return err
	}
	next, _ := cur.Next()
	m.agg.CurrentStep = next
	// Hydrated documents may not have every reference seeded yet.
	m.gen.Seed(m.agg, next)
	return nil
}

// Submit finalizes the workflow from the payment stage. total_invoice
// is recomputed from the invoice items and balance from
// total_invoice - amount_received before validation. The in-flight
// guard makes rapid repeated invocations collapse into a single
// persistence call: the duplicate returns submitted=false with no
// error.
func (m *Machine) Submit(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrSessionClosed
	}
	if m.complete {
		m.mu.Unlock()
		return false, ErrWorkflowComplete
	}
	if m.agg.CurrentStep != models.StagePayment {
		m.mu.Unlock()
		return false, ErrNotPaymentStage
	}
	if m.inFlight {
		// Duplicate submission is prevented structurally, not reported
		// as a runtime error.
		m.mu.Unlock()
		return false, nil
	}

	pay := &m.agg.Steps.Payment
	pay.TotalInvoice = totals.Calculate(m.agg.Steps.Invoice.Items).GrandTotal
	pay.Balance = totals.Balance(pay.TotalInvoice, pay.AmountReceived)
	m.mu.Unlock()

	snapshot, id, err := m.beginPersist(true)
	if err != nil {
		if err == ErrTransitionInFlight {
			return false, nil
		}
		return false, err
	}
	newID, callErr := m.callGateway(ctx, id, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.endPersistLocked(newID, callErr); err != nil {
		return false, err
	}
	m.agg.SetStageStatus(models.StagePayment, models.StepStatusCompleted)
	m.complete = true
	return true, nil
}

// Close discards the machine. In-flight gateway responses arriving
// after this point are dropped rather than applied.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// DocumentID returns the persisted id, or uuid.Nil before the first
// successful create.
func (m *Machine) DocumentID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docID
}

// Complete reports whether the workflow has been submitted.
func (m *Machine) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}
