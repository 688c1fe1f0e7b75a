package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
)

// Mock persistence gateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Create(ctx context.Context, agg *models.DocumentAggregate) (uuid.UUID, error) {
	args := m.Called(ctx, agg)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, id uuid.UUID, agg *models.DocumentAggregate) (uuid.UUID, error) {
	args := m.Called(ctx, id, agg)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockGateway) FetchByID(ctx context.Context, id uuid.UUID) (*models.DocumentAggregate, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.DocumentAggregate), args.Error(1)
}

// blockingGateway holds every persistence call open until released, so
// tests can observe the machine while a transition is in flight.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}

	mu      sync.Mutex
	creates int
	id      uuid.UUID
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		id:      uuid.New(),
	}
}

func (g *blockingGateway) Create(ctx context.Context, agg *models.DocumentAggregate) (uuid.UUID, error) {
	g.mu.Lock()
	g.creates++
	g.mu.Unlock()
	g.entered <- struct{}{}
	<-g.release
	return g.id, nil
}

func (g *blockingGateway) Update(ctx context.Context, id uuid.UUID, agg *models.DocumentAggregate) (uuid.UUID, error) {
	g.entered <- struct{}{}
	<-g.release
	return id, nil
}

func (g *blockingGateway) FetchByID(ctx context.Context, id uuid.UUID) (*models.DocumentAggregate, error) {
	return nil, nil
}

func (g *blockingGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}

// recordingGateway notes the stage each persisted snapshot was tagged
// with. Safe for concurrent callers.
type recordingGateway struct {
	mu     sync.Mutex
	stages []models.Stage
	id     uuid.UUID
}

func (g *recordingGateway) record(agg *models.DocumentAggregate) {
	g.mu.Lock()
	g.stages = append(g.stages, agg.CurrentStep)
	g.mu.Unlock()
}

func (g *recordingGateway) Create(ctx context.Context, agg *models.DocumentAggregate) (uuid.UUID, error) {
	g.record(agg)
	return g.id, nil
}

func (g *recordingGateway) Update(ctx context.Context, id uuid.UUID, agg *models.DocumentAggregate) (uuid.UUID, error) {
	g.record(agg)
	return id, nil
}

func (g *recordingGateway) FetchByID(ctx context.Context, id uuid.UUID) (*models.DocumentAggregate, error) {
	return nil, nil
}

func (g *recordingGateway) persisted() []models.Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Stage(nil), g.stages...)
}

func fullCaps() Capabilities {
	return Capabilities{CanCreate: true, CanView: true, CanUpdate: true, CanDelete: true}
}

func testItems() []models.LineItem {
	return []models.LineItem{
		{
			ItemName:   "Widget",
			Qty:        decimal.NewFromInt(2),
			Rate:       decimal.NewFromInt(100),
			TaxPercent: decimal.NewFromInt(10),
			Discount:   decimal.NewFromInt(5),
		},
		{
			ItemName: "Gadget",
			Qty:      decimal.NewFromInt(1),
			Rate:     decimal.NewFromInt(50),
		},
	}
}

func TestSkipAdvancesWithoutNetworkCalls(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	require.NoError(t, machine.Skip())
	require.Equal(t, models.StageSalesOrder, machine.State().CurrentStep)

	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.Equal(t, models.StagePayment, machine.State().CurrentStep)

	// Payment has no successor
	require.ErrorIs(t, machine.Skip(), ErrTerminalStage)

	// No persistence traffic at any point
	mockGw.AssertExpectations(t)
	mockGw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockGw.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveDraftRequiresManualReference(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	err := machine.SaveDraft(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, models.StageQuotation, verr.Stage)
	require.Equal(t, "manual_quo_no", verr.Field)

	// The failed attempt latches into visible validation state
	state := machine.State()
	require.True(t, state.Validation[models.StageQuotation].Attempted)
	require.True(t, state.Validation[models.StageQuotation].ErrorVisible)

	// Other stages are untouched even though their refs are also empty
	require.False(t, state.Validation[models.StageSalesOrder].Attempted)
	require.False(t, state.Validation[models.StageSalesOrder].ErrorVisible)

	mockGw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	// Supplying the reference clears the visible error but not the latch
	ref := "Q-77"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))
	state = machine.State()
	require.True(t, state.Validation[models.StageQuotation].Attempted)
	require.False(t, state.Validation[models.StageQuotation].ErrorVisible)

	mockGw.On("Create", mock.Anything, mock.Anything).Return(uuid.New(), nil)
	require.NoError(t, machine.SaveDraft(context.Background()))
	mockGw.AssertExpectations(t)
}

func TestSaveDraftCapturesCreatedIdentity(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	ref := "Q-1"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))

	docID := uuid.New()
	mockGw.On("Create", mock.Anything, mock.Anything).Return(docID, nil).Once()
	require.NoError(t, machine.SaveDraft(context.Background()))
	require.Equal(t, docID, machine.DocumentID())

	// Every later save is an update against the captured identity
	mockGw.On("Update", mock.Anything, docID, mock.Anything).Return(docID, nil).Once()
	require.NoError(t, machine.SaveDraft(context.Background()))
	mockGw.AssertExpectations(t)
}

func TestSaveAndAdvancePropagatesIntoNextStep(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	ref := "Q-1"
	date := "2026-03-01"
	name := "Acme Traders"
	addr := "14 Canal Road"
	custRef := "CUST-009"
	require.NoError(t, machine.UpdateStep(StepPatch{
		ManualRef:       &ref,
		Date:            &date,
		CustomerName:    &name,
		CustomerAddress: &addr,
		CustomerRef:     &custRef,
	}))
	require.NoError(t, machine.SetItems(testItems()))

	mockGw.On("Create", mock.Anything, mock.Anything).Return(uuid.New(), nil).Once()
	require.NoError(t, machine.SaveAndAdvance(context.Background()))

	state := machine.State()
	require.Equal(t, models.StageSalesOrder, state.CurrentStep)

	agg := state.Aggregate
	require.Equal(t, models.StepStatusCompleted, agg.Steps.Quotation.Status)
	require.Equal(t, name, agg.ShippingDetails.BillToName)
	require.Equal(t, name, agg.ShippingDetails.BillToCompanyName)
	require.Equal(t, addr, agg.ShippingDetails.BillToAddress)
	require.Equal(t, custRef, agg.Steps.SalesOrder.CustomerNo)
	require.Equal(t, date, agg.Steps.SalesOrder.OrderDate)

	// Ship-to is never filled from upstream data
	require.Empty(t, agg.ShippingDetails.ShipToName)
	require.Empty(t, agg.ShippingDetails.ShipToAddress)

	// Items carry into the empty next stage and the order reference is seeded
	require.Len(t, agg.Steps.SalesOrder.Items, 2)
	require.NotEmpty(t, agg.Steps.SalesOrder.SONo)

	mockGw.AssertExpectations(t)
}

func TestSaveAndAdvanceFailureLeavesStateRetryable(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	ref := "Q-1"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))

	mockGw.On("Create", mock.Anything, mock.Anything).
		Return(uuid.Nil, context.DeadlineExceeded).Once()
	require.Error(t, machine.SaveAndAdvance(context.Background()))

	// Nothing moved, nothing was captured
	state := machine.State()
	require.Equal(t, models.StageQuotation, state.CurrentStep)
	require.Equal(t, models.StepStatusPending, state.Aggregate.Steps.Quotation.Status)
	require.Equal(t, uuid.Nil, machine.DocumentID())

	// The retry path is a plain create again
	docID := uuid.New()
	mockGw.On("Create", mock.Anything, mock.Anything).Return(docID, nil).Once()
	require.NoError(t, machine.SaveAndAdvance(context.Background()))
	require.Equal(t, docID, machine.DocumentID())
	require.Equal(t, models.StageSalesOrder, machine.State().CurrentStep)

	mockGw.AssertExpectations(t)
}

func TestRapidSaveAndAdvancePersistsEachStageOnce(t *testing.T) {
	gw := &recordingGateway{id: uuid.New()}
	machine := NewMachine(gw, numbering.NewGenerator(), "co-1", fullCaps())
	for _, stage := range models.StageOrder {
		machine.agg.SetManualReference(stage, "REF-"+string(stage))
	}

	// Several writers hammer the same machine. The pointer must advance
	// exactly once per persisted snapshot and every snapshot must carry
	// a distinct stage; a transition that lands between another call's
	// persist and its pointer advance would persist the same stage twice.
	const workers = 4
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for {
				switch err := machine.SaveAndAdvance(context.Background()); err {
				case nil, ErrTransitionInFlight:
					continue
				case ErrTerminalStage:
					errs <- nil
					return
				default:
					errs <- err
					return
				}
			}
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	require.Equal(t, models.StagePayment, machine.State().CurrentStep)
	require.Equal(t, []models.Stage{
		models.StageQuotation,
		models.StageSalesOrder,
		models.StageDeliveryChallan,
		models.StageInvoice,
	}, gw.persisted())
}

func TestSubmitOnlyFromPaymentStage(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	submitted, err := machine.Submit(context.Background())
	require.ErrorIs(t, err, ErrNotPaymentStage)
	require.False(t, submitted)
}

func TestSubmitComputesPaymentTotals(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	// Position at invoice, enter items, then move to payment
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.SetItems(testItems()))
	require.NoError(t, machine.Skip())

	ref := "PAY-9"
	received := decimal.NewFromInt(200)
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref, AmountReceived: &received}))

	mockGw.On("Create", mock.Anything, mock.Anything).Return(uuid.New(), nil).Once()
	submitted, err := machine.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, submitted)

	state := machine.State()
	require.True(t, state.Complete)
	pay := state.Aggregate.Steps.Payment
	require.Equal(t, models.StepStatusCompleted, pay.Status)
	require.True(t, pay.TotalInvoice.Equal(decimal.NewFromInt(265)), "total_invoice = %s", pay.TotalInvoice)
	require.True(t, pay.Balance.Equal(decimal.NewFromInt(65)), "balance = %s", pay.Balance)

	// A completed workflow rejects further transitions
	_, err = machine.Submit(context.Background())
	require.ErrorIs(t, err, ErrWorkflowComplete)

	mockGw.AssertExpectations(t)
}

func TestSubmitDuplicateWhileInFlight(t *testing.T) {
	gw := newBlockingGateway()
	machine := NewMachine(gw, numbering.NewGenerator(), "co-1", fullCaps())

	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())

	ref := "PAY-1"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))

	type result struct {
		submitted bool
		err       error
	}
	first := make(chan result, 1)
	go func() {
		submitted, err := machine.Submit(context.Background())
		first <- result{submitted, err}
	}()

	// Wait until the first call is parked inside the gateway
	<-gw.entered

	// The duplicate collapses to a quiet no-op
	submitted, err := machine.Submit(context.Background())
	require.NoError(t, err)
	require.False(t, submitted)

	close(gw.release)
	res := <-first
	require.NoError(t, res.err)
	require.True(t, res.submitted)

	require.Equal(t, 1, gw.createCalls())
	require.True(t, machine.Complete())
}

func TestCloseDropsLateResponse(t *testing.T) {
	gw := newBlockingGateway()
	machine := NewMachine(gw, numbering.NewGenerator(), "co-1", fullCaps())

	ref := "Q-1"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))

	done := make(chan error, 1)
	go func() {
		done <- machine.SaveDraft(context.Background())
	}()

	<-gw.entered
	machine.Close()
	close(gw.release)

	require.ErrorIs(t, <-done, ErrSessionClosed)

	// The late create response was not applied
	require.Equal(t, uuid.Nil, machine.DocumentID())
}

func TestCapabilitiesGateTransitions(t *testing.T) {
	mockGw := new(MockGateway)

	// Viewer without create rights cannot persist a new document
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", Capabilities{CanView: true, CanUpdate: true})
	ref := "Q-1"
	require.NoError(t, machine.UpdateStep(StepPatch{ManualRef: &ref}))
	require.ErrorIs(t, machine.SaveDraft(context.Background()), ErrPermissionDenied)

	// No update rights blocks edits entirely
	readOnly := NewMachine(mockGw, numbering.NewGenerator(), "co-1", Capabilities{CanView: true})
	require.ErrorIs(t, readOnly.UpdateStep(StepPatch{ManualRef: &ref}), ErrPermissionDenied)
	require.ErrorIs(t, readOnly.SetItems(testItems()), ErrPermissionDenied)

	mockGw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSetItemsRejectedAtPayment(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())

	require.ErrorIs(t, machine.SetItems(testItems()), ErrNoItemsAtPayment)
}

func TestAmountReceivedEditRecomputesBalance(t *testing.T) {
	mockGw := new(MockGateway)
	machine := NewMachine(mockGw, numbering.NewGenerator(), "co-1", fullCaps())

	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())
	require.NoError(t, machine.Skip())

	received := decimal.NewFromInt(400)
	require.NoError(t, machine.UpdateStep(StepPatch{AmountReceived: &received}))

	pay := machine.State().Aggregate.Steps.Payment
	// Overpayment keeps its sign, the balance is never clamped
	require.True(t, pay.Balance.Equal(pay.TotalInvoice.Sub(received)), "balance = %s", pay.Balance)
	require.True(t, pay.Balance.IsNegative())
}
