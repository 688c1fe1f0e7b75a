package workflow

import (
	"context"

	"github.com/google/uuid"

	"example.com/backoffice/services/salesflow/internal/gateway"
	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/totals"
)

// resumeStage picks the first stage whose step is not completed. A
// fully completed document resumes at payment so its state stays
// viewable.
func resumeStage(agg *models.DocumentAggregate) models.Stage {
	for _, stage := range models.StageOrder {
		if agg.StageStatus(stage) != models.StepStatusCompleted {
			return stage
		}
	}
	return models.StagePayment
}

// NewMachineFromDocument loads a persisted aggregate and opens a
// machine positioned at the first non-completed stage. The stored
// record wins over defaults, references missing from older records are
// seeded, and the resumed stage inherits the flattened items so edits
// start from what the document last showed.
func NewMachineFromDocument(ctx context.Context, gw gateway.PersistenceGateway, gen *numbering.Generator, id uuid.UUID, caps Capabilities) (*Machine, error) {
	if !caps.CanView {
		return nil, ErrPermissionDenied
	}

	agg, err := gw.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	agg.CurrentStep = resumeStage(agg)
	gen.SeedAll(agg)

	// Per-step item lists are not stored on the wire; repopulate the
	// resumed stage from the flattened array.
	if agg.CurrentStep != models.StagePayment && len(agg.StageItems(agg.CurrentStep)) == 0 && len(agg.Items) > 0 {
		items := make([]models.LineItem, len(agg.Items))
		copy(items, agg.Items)
		totals.Recalculate(items)
		agg.SetStageItems(agg.CurrentStep, items)
	}

	m := &Machine{
		gw:        gw,
		gen:       gen,
		agg:       agg,
		docID:     id,
		caps:      caps,
		attempted: make(map[models.Stage]bool),
		complete:  agg.StageStatus(models.StagePayment) == models.StepStatusCompleted,
	}
	aggID := id
	agg.ID = &aggID
	return m, nil
}
