package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/tracing"
	"example.com/backoffice/services/salesflow/internal/workflow"
)

// WorkflowHandler handles document workflow HTTP requests
type WorkflowHandler struct {
	workflowService *workflow.Service
	tracer          tracing.Tracer
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflowService *workflow.Service, tracer tracing.Tracer) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService: workflowService,
		tracer:          tracer,
	}
}

// OpenSessionRequest opens a workflow session. DocumentID resumes a
// persisted document; leaving it empty starts a blank one. The
// capability set comes from the identity collaborator, never from
// ambient state.
type OpenSessionRequest struct {
	CompanyID    string                `json:"company_id" binding:"required"`
	DocumentID   *uuid.UUID            `json:"document_id"`
	Capabilities workflow.Capabilities `json:"capabilities"`
}

// SessionResponse is the envelope for all session endpoints.
type SessionResponse struct {
	SessionID uuid.UUID      `json:"session_id"`
	State     workflow.State `json:"state"`
}

// HandleOpenSession opens a new or resumed workflow session
func (h *WorkflowHandler) HandleOpenSession(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-open-session")
	defer h.tracer.EndTransaction(txn)

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "company_id", req.CompanyID)

	var (
		id    uuid.UUID
		state workflow.State
		err   error
	)
	if req.DocumentID != nil {
		id, state, err = h.workflowService.OpenDocumentSession(c, *req.DocumentID, req.CompanyID, req.Capabilities)
	} else {
		id, state, err = h.workflowService.OpenSession(c, req.CompanyID, req.Capabilities)
	}
	if err != nil {
		h.tracer.RecordError(txn, err)
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{SessionID: id, State: state})
}

// HandleGetState returns the session's current state
func (h *WorkflowHandler) HandleGetState(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	state, err := h.workflowService.GetState(id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// HandleUpdateStep applies a sparse patch to the current step
func (h *WorkflowHandler) HandleUpdateStep(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var patch workflow.StepPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.workflowService.UpdateStep(id, patch)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// ItemsRequest replaces the current stage's line items
type ItemsRequest struct {
	Items []models.LineItem `json:"items" binding:"required"`
}

// HandleSetItems replaces the current stage's line items
func (h *WorkflowHandler) HandleSetItems(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req ItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.workflowService.SetItems(id, req.Items)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// HandleSetShipping replaces the document's shipping details
func (h *WorkflowHandler) HandleSetShipping(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var details models.ShippingDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.workflowService.SetShipping(id, details)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// HandleSkip advances the stage pointer without saving
func (h *WorkflowHandler) HandleSkip(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	state, err := h.workflowService.Skip(id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// HandleSaveDraft persists the document at its current stage
func (h *WorkflowHandler) HandleSaveDraft(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-save-draft")
	defer h.tracer.EndTransaction(txn)

	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	state, err := h.workflowService.SaveDraft(c, id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// HandleSaveAndAdvance persists the document and moves to the next stage
func (h *WorkflowHandler) HandleSaveAndAdvance(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-save-and-advance")
	defer h.tracer.EndTransaction(txn)

	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	state, err := h.workflowService.SaveAndAdvance(c, id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: state})
}

// SubmitResponse reports the outcome of a submission attempt.
// Submitted is false without an error when a duplicate request arrived
// while the first was still in flight.
type SubmitResponse struct {
	SessionID uuid.UUID      `json:"session_id"`
	Submitted bool           `json:"submitted"`
	State     workflow.State `json:"state"`
}

// HandleSubmit finalizes the workflow from the payment stage
func (h *WorkflowHandler) HandleSubmit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-submit")
	defer h.tracer.EndTransaction(txn)

	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	submitted, state, err := h.workflowService.Submit(c, id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SubmitResponse{SessionID: id, Submitted: submitted, State: state})
}

// HandleCloseSession discards a session
func (h *WorkflowHandler) HandleCloseSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.workflowService.CloseSession(id); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WorkflowHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *WorkflowHandler) renderError(c *gin.Context, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": verr.Error(),
			"stage": verr.Stage,
			"field": verr.Field,
		})
	case errors.Is(err, workflow.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrWorkflowComplete),
		errors.Is(err, workflow.ErrTerminalStage),
		errors.Is(err, workflow.ErrNotPaymentStage),
		errors.Is(err, workflow.ErrNoItemsAtPayment):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("Workflow request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RegisterRoutes registers the handler's routes
func (h *WorkflowHandler) RegisterRoutes(router *gin.Engine) {
	sessions := router.Group("/sessions")
	sessions.POST("", h.HandleOpenSession)
	sessions.GET("/:id", h.HandleGetState)
	sessions.PATCH("/:id/step", h.HandleUpdateStep)
	sessions.PUT("/:id/items", h.HandleSetItems)
	sessions.PUT("/:id/shipping", h.HandleSetShipping)
	sessions.POST("/:id/skip", h.HandleSkip)
	sessions.POST("/:id/save", h.HandleSaveDraft)
	sessions.POST("/:id/advance", h.HandleSaveAndAdvance)
	sessions.POST("/:id/submit", h.HandleSubmit)
	sessions.DELETE("/:id", h.HandleCloseSession)
}
