package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
)

func storedAggregate() *models.DocumentAggregate {
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.Quotation.ManualQuoNo = "Q-1"
	agg.Steps.Quotation.Status = models.StepStatusCompleted
	agg.Steps.SalesOrder.ManualRefNo = "SO-1"
	agg.Steps.SalesOrder.Status = models.StepStatusCompleted
	agg.Items = []models.LineItem{
		{ItemName: "Widget", Qty: decimal.NewFromInt(2), Rate: decimal.NewFromInt(100)},
	}
	return agg
}

func TestResumeAtFirstNonCompletedStage(t *testing.T) {
	docID := uuid.New()
	mockGw := new(MockGateway)
	mockGw.On("FetchByID", mock.Anything, docID).Return(storedAggregate(), nil)

	machine, err := NewMachineFromDocument(context.Background(), mockGw, numbering.NewGenerator(), docID, fullCaps())
	require.NoError(t, err)

	state := machine.State()
	require.Equal(t, models.StageDeliveryChallan, state.CurrentStep)
	require.False(t, state.Complete)
	require.Equal(t, docID, machine.DocumentID())
	mockGw.AssertExpectations(t)
}

func TestResumeSeedsItemsAndReferences(t *testing.T) {
	docID := uuid.New()
	stored := storedAggregate()
	// Older records predate reference seeding for later stages
	stored.Steps.DeliveryChallan.ChallanNo = ""
	stored.Steps.Invoice.InvoiceNo = ""

	mockGw := new(MockGateway)
	mockGw.On("FetchByID", mock.Anything, docID).Return(stored, nil)

	machine, err := NewMachineFromDocument(context.Background(), mockGw, numbering.NewGenerator(), docID, fullCaps())
	require.NoError(t, err)

	agg := machine.State().Aggregate
	require.NotEmpty(t, agg.Steps.DeliveryChallan.ChallanNo)
	require.NotEmpty(t, agg.Steps.Invoice.InvoiceNo)

	// The resumed stage starts from what the document last showed
	items := agg.Steps.DeliveryChallan.Items
	require.Len(t, items, 1)
	require.Equal(t, "Widget", items[0].ItemName)
	require.True(t, items[0].Amount.Equal(decimal.NewFromInt(200)), "amount = %s", items[0].Amount)
}

func TestResumeFullyCompletedDocument(t *testing.T) {
	docID := uuid.New()
	stored := storedAggregate()
	for _, stage := range models.StageOrder {
		stored.SetStageStatus(stage, models.StepStatusCompleted)
	}

	mockGw := new(MockGateway)
	mockGw.On("FetchByID", mock.Anything, docID).Return(stored, nil)

	machine, err := NewMachineFromDocument(context.Background(), mockGw, numbering.NewGenerator(), docID, fullCaps())
	require.NoError(t, err)

	state := machine.State()
	require.Equal(t, models.StagePayment, state.CurrentStep)
	require.True(t, state.Complete)

	// A submitted document stays viewable but rejects edits
	ref := "PAY-2"
	require.ErrorIs(t, machine.UpdateStep(StepPatch{ManualRef: &ref}), ErrWorkflowComplete)
	_, err = machine.Submit(context.Background())
	require.ErrorIs(t, err, ErrWorkflowComplete)
}

func TestHydrationRequiresViewCapability(t *testing.T) {
	mockGw := new(MockGateway)

	_, err := NewMachineFromDocument(context.Background(), mockGw, numbering.NewGenerator(), uuid.New(), Capabilities{})
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Denied before any fetch happens
	mockGw.AssertNotCalled(t, "FetchByID", mock.Anything, mock.Anything)
}
