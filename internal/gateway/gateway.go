// Package gateway is the persistence edge of the workflow engine.
// The workflow state machine talks to the PersistenceGateway contract
// only; the gorm-backed implementation here owns the record encoding
// and the create-vs-update distinction is the caller's (the aggregate
// either has an id or it does not).
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/repositories"
	"example.com/backoffice/services/salesflow/internal/totals"
)

// PersistenceGateway persists workflow document aggregates.
type PersistenceGateway interface {
	// Create stores a new aggregate and returns its assigned id.
	Create(ctx context.Context, agg *models.DocumentAggregate) (uuid.UUID, error)
	// Update replaces the stored state of an existing aggregate.
	Update(ctx context.Context, id uuid.UUID, agg *models.DocumentAggregate) (uuid.UUID, error)
	// FetchByID loads a full aggregate for hydration.
	FetchByID(ctx context.Context, id uuid.UUID) (*models.DocumentAggregate, error)
}

// DocumentGateway implements PersistenceGateway on the document
// repository.
type DocumentGateway struct {
	docRepo *repositories.DocumentRepository
}

// NewDocumentGateway creates a gorm-backed persistence gateway.
func NewDocumentGateway(docRepo *repositories.DocumentRepository) *DocumentGateway {
	return &DocumentGateway{docRepo: docRepo}
}

// Create stores a new aggregate and returns its assigned id.
func (g *DocumentGateway) Create(ctx context.Context, agg *models.DocumentAggregate) (uuid.UUID, error) {
	rec := &models.DocumentRecord{ID: uuid.New()}
	if err := rec.ApplyAggregate(agg, totals.Calculate(agg.Items).GrandTotal); err != nil {
		return uuid.Nil, err
	}
	if err := g.docRepo.Create(ctx, rec); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to create document")
	}
	return rec.ID, nil
}

// Update replaces the stored state of an existing aggregate.
func (g *DocumentGateway) Update(ctx context.Context, id uuid.UUID, agg *models.DocumentAggregate) (uuid.UUID, error) {
	rec, err := g.docRepo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if err := rec.ApplyAggregate(agg, totals.Calculate(agg.Items).GrandTotal); err != nil {
		return uuid.Nil, err
	}
	if err := g.docRepo.Update(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// FetchByID loads a full aggregate for hydration.
func (g *DocumentGateway) FetchByID(ctx context.Context, id uuid.UUID) (*models.DocumentAggregate, error) {
	rec, err := g.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	agg, err := rec.Aggregate()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode document record")
	}
	return agg, nil
}
