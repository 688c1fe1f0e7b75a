package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backoffice/services/salesflow/internal/gateway"
	"example.com/backoffice/services/salesflow/internal/messaging"
	"example.com/backoffice/services/salesflow/internal/metrics"
	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/refdata"
	"example.com/backoffice/services/salesflow/internal/repositories"
	"example.com/backoffice/services/salesflow/internal/search"
	"example.com/backoffice/services/salesflow/internal/tracing"
)

type session struct {
	machine    *Machine
	lastAccess time.Time
}

// Service manages workflow sessions over the persistence gateway.
// One session holds one machine; sessions idle past the configured
// window are pruned by the background broom.
type Service struct {
	gw        gateway.PersistenceGateway
	docRepo   *repositories.DocumentRepository
	gen       *numbering.Generator
	refdata   *refdata.Service
	publisher messaging.ServiceBusClient
	elastic   *search.ElasticClient
	metrics   *metrics.Metrics
	tracer    tracing.Tracer

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewService creates a new workflow service
func NewService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	gen *numbering.Generator,
	refdataService *refdata.Service,
	publisher messaging.ServiceBusClient,
	elastic *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Service {
	docRepo := repositories.NewDocumentRepository(db, readOnlyDB)

	return &Service{
		gw:        gateway.NewDocumentGateway(docRepo),
		docRepo:   docRepo,
		gen:       gen,
		refdata:   refdataService,
		publisher: publisher,
		elastic:   elastic,
		metrics:   metricsCollector,
		tracer:    tracer,
		sessions:  make(map[uuid.UUID]*session),
	}
}

// OpenSession opens a session over a new blank document. The issuing
// company's profile is loaded up front so the branding block has a
// single writer.
func (s *Service) OpenSession(ctx context.Context, companyID string, caps Capabilities) (uuid.UUID, State, error) {
	if !caps.CanView {
		return uuid.Nil, State{}, ErrPermissionDenied
	}

	machine := NewMachine(s.gw, s.gen, companyID, caps)
	s.applyCompanyInfo(ctx, machine, companyID)

	id := s.register(machine)
	s.metrics.IncrementCounter("workflow.sessions_opened")

	log.Info().
		Str("session_id", id.String()).
		Str("company_id", companyID).
		Msg("Workflow session opened")

	return id, machine.State(), nil
}

// OpenDocumentSession opens a session over a persisted document,
// resuming at the first non-completed stage.
func (s *Service) OpenDocumentSession(ctx context.Context, docID uuid.UUID, companyID string, caps Capabilities) (uuid.UUID, State, error) {
	txn := s.tracer.StartTransaction("open-document-session")
	defer s.tracer.EndTransaction(txn)

	machine, err := NewMachineFromDocument(ctx, s.gw, s.gen, docID, caps)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return uuid.Nil, State{}, errors.Wrap(err, "failed to open document session")
	}
	s.applyCompanyInfo(ctx, machine, companyID)

	id := s.register(machine)
	s.metrics.IncrementCounter("workflow.sessions_resumed")

	log.Info().
		Str("session_id", id.String()).
		Str("document_id", docID.String()).
		Msg("Workflow session resumed")

	return id, machine.State(), nil
}

func (s *Service) applyCompanyInfo(ctx context.Context, machine *Machine, companyID string) {
	if s.refdata == nil {
		return
	}
	info, err := s.refdata.CompanyInfo(ctx, companyID)
	if err != nil {
		log.Warn().Err(err).Str("company_id", companyID).Msg("Failed to load company profile, continuing without branding")
		return
	}
	if err := machine.SetCompanyInfo(info); err != nil {
		log.Warn().Err(err).Msg("Failed to apply company profile")
	}
}

func (s *Service) register(machine *Machine) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.sessions[id] = &session{machine: machine, lastAccess: time.Now()}
	s.metrics.SetGauge("workflow.active_sessions", int64(len(s.sessions)))
	s.mu.Unlock()
	return id
}

func (s *Service) machine(id uuid.UUID) (*Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastAccess = time.Now()
	return sess.machine, nil
}

// GetState returns a snapshot of a session's machine.
func (s *Service) GetState(id uuid.UUID) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}
	return machine.State(), nil
}

// UpdateStep applies a sparse patch to the session's current step.
func (s *Service) UpdateStep(id uuid.UUID, patch StepPatch) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}
	if err := machine.UpdateStep(patch); err != nil {
		return State{}, err
	}
	return machine.State(), nil
}

// SetItems replaces the session's current stage line items.
func (s *Service) SetItems(id uuid.UUID, items []models.LineItem) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}
	if err := machine.SetItems(items); err != nil {
		return State{}, err
	}
	return machine.State(), nil
}

// SetShipping replaces the session's shipping details block.
func (s *Service) SetShipping(id uuid.UUID, details models.ShippingDetails) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}
	if err := machine.SetShipping(details); err != nil {
		return State{}, err
	}
	return machine.State(), nil
}

// Skip advances the session's stage pointer without persisting.
func (s *Service) Skip(id uuid.UUID) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}
	if err := machine.Skip(); err != nil {
		return State{}, err
	}
	s.metrics.IncrementCounter("workflow.steps_skipped")
	return machine.State(), nil
}

// SaveDraft persists the session's document at its current stage.
func (s *Service) SaveDraft(ctx context.Context, id uuid.UUID) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}

	start := time.Now()
	err = machine.SaveDraft(ctx)
	s.metrics.RecordTimer("workflow.save_draft_ms", time.Since(start).Milliseconds())

	if err != nil {
		s.metrics.RecordError("workflow.save_draft")
		return State{}, err
	}
	s.metrics.RecordSuccess("workflow.save_draft")
	return machine.State(), nil
}

// SaveAndAdvance persists the session's document and moves it to the
// next stage.
func (s *Service) SaveAndAdvance(ctx context.Context, id uuid.UUID) (State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return State{}, err
	}

	start := time.Now()
	err = machine.SaveAndAdvance(ctx)
	s.metrics.RecordTimer("workflow.save_and_advance_ms", time.Since(start).Milliseconds())

	if err != nil {
		s.metrics.RecordError("workflow.save_and_advance")
		return State{}, err
	}
	s.metrics.RecordSuccess("workflow.save_and_advance")
	return machine.State(), nil
}

// Submit finalizes the session's workflow from the payment stage. On
// first success the completion event is published and the document is
// indexed for search; both degrade to the background sweep on failure.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (bool, State, error) {
	machine, err := s.machine(id)
	if err != nil {
		return false, State{}, err
	}

	txn := s.tracer.StartTransaction("submit-document")
	defer s.tracer.EndTransaction(txn)

	span := s.tracer.StartSpan("submit", txn)
	submitted, err := machine.Submit(ctx)
	span.End()

	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("workflow.submit")
		return false, State{}, err
	}
	s.metrics.RecordSuccess("workflow.submit")

	if submitted {
		s.metrics.IncrementCounter("workflow.documents_submitted")
		s.tracer.AddAttribute(txn, "document_id", machine.DocumentID().String())
		s.afterSubmit(ctx, machine)
	}

	return submitted, machine.State(), nil
}

// afterSubmit publishes the completion event and attempts immediate
// search indexing. Failures are logged and left to the reconcile
// sweep; the submission itself has already been persisted.
func (s *Service) afterSubmit(ctx context.Context, machine *Machine) {
	docID := machine.DocumentID()

	rec, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		log.Warn().Err(err).Str("document_id", docID.String()).Msg("Failed to reload submitted document")
		return
	}

	if s.publisher != nil {
		event := messaging.DocumentEvent{
			Event:       messaging.EventDocumentSubmitted,
			DocumentID:  docID,
			CompanyID:   rec.CompanyID,
			CurrentStep: rec.CurrentStep,
			GrandTotal:  rec.GrandTotal.String(),
			OccurredAt:  time.Now().UTC(),
		}
		if err := s.publisher.SendMessage(ctx, event); err != nil {
			log.Warn().Err(err).Str("document_id", docID.String()).Msg("Failed to publish submission event")
		}
	}

	if s.elastic != nil {
		if err := s.elastic.IndexDocument(ctx, rec); err != nil {
			log.Warn().Err(err).Str("document_id", docID.String()).Msg("Failed to index submitted document, sweep will retry")
			return
		}
		if err := s.docRepo.MarkIndexed(ctx, docID); err != nil {
			log.Warn().Err(err).Str("document_id", docID.String()).Msg("Failed to mark document as indexed")
		}
	}
}

// CloseSession discards a session. In-flight persistence responses
// arriving afterwards are dropped.
func (s *Service) CloseSession(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.metrics.SetGauge("workflow.active_sessions", int64(len(s.sessions)))
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.machine.Close()

	log.Info().Str("session_id", id.String()).Msg("Workflow session closed")
	return nil
}

// PruneExpired closes sessions idle longer than maxIdle and reports
// how many were removed.
func (s *Service) PruneExpired(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.lastAccess.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.metrics.SetGauge("workflow.active_sessions", int64(len(s.sessions)))
	s.mu.Unlock()

	for _, sess := range expired {
		sess.machine.Close()
	}

	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Pruned expired workflow sessions")
	}
	return len(expired)
}

// ReconcileSearchIndex indexes submitted documents the immediate path
// missed. The worker runs this on a schedule as a fallback.
func (s *Service) ReconcileSearchIndex(ctx context.Context, batch int) error {
	if s.elastic == nil {
		return nil
	}

	txn := s.tracer.StartTransaction("reconcile-search-index")
	defer s.tracer.EndTransaction(txn)

	span := s.tracer.StartSpan("list-unindexed", txn)
	recs, err := s.docRepo.ListUnindexed(ctx, batch)
	span.End()

	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to list unindexed documents")
	}

	log.Info().Msgf("Found %d unindexed submitted documents for reconciliation", len(recs))

	if len(recs) == 0 {
		return nil
	}

	for i := range recs {
		rec := &recs[i]

		indexSpan := s.tracer.StartSpan("index-document", txn)
		err := s.elastic.IndexDocument(ctx, rec)
		indexSpan.End()

		if err != nil {
			log.Error().
				Err(err).
				Str("document_id", rec.ID.String()).
				Msg("Failed to index document during reconciliation")
			s.tracer.RecordError(txn, err)
			continue
		}

		if err := s.docRepo.MarkIndexed(ctx, rec.ID); err != nil {
			log.Error().
				Err(err).
				Str("document_id", rec.ID.String()).
				Msg("Failed to mark document as indexed during reconciliation")
			s.tracer.RecordError(txn, err)
			continue
		}

		s.metrics.IncrementCounter("workflow.documents_reconciled")
	}

	return nil
}
