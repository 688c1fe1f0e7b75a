package workflow

import (
	"fmt"

	"github.com/pkg/errors"

	"example.com/backoffice/services/salesflow/internal/models"
)

var (
	// ErrTransitionInFlight is returned when a transition is requested
	// while the persistence call of a previous transition on the same
	// document has not completed yet.
	ErrTransitionInFlight = errors.New("a transition is already in flight for this document")

	// ErrSessionClosed is returned for any operation on a closed
	// session. Late gateway responses are dropped under the same error.
	ErrSessionClosed = errors.New("workflow session is closed")

	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = errors.New("workflow session not found")

	// ErrWorkflowComplete is returned for transitions after a
	// successful submit.
	ErrWorkflowComplete = errors.New("workflow is already complete")

	// ErrPermissionDenied is returned when the session's capability set
	// does not allow the requested operation.
	ErrPermissionDenied = errors.New("capability set does not permit this operation")

	// ErrTerminalStage is returned when Skip or SaveAndAdvance is
	// invoked from the payment stage.
	ErrTerminalStage = errors.New("payment is the terminal stage")

	// ErrNotPaymentStage is returned when Submit is invoked before the
	// workflow has reached the payment stage.
	ErrNotPaymentStage = errors.New("submit is only valid from the payment stage")

	// ErrNoItemsAtPayment is returned when line items are edited while
	// the pointer sits on the payment stage.
	ErrNoItemsAtPayment = errors.New("the payment stage carries no line items")
)

// ValidationError reports a missing required field on a step. It is
// local and recoverable; the caller surfaces it inline.
type ValidationError struct {
	Stage models.Stage
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %s on %s", e.Field, e.Stage)
}

// manualRefField maps a stage to the wire name of its manual
// reference field.
func manualRefField(stage models.Stage) string {
	switch stage {
	case models.StageQuotation:
		return "manual_quo_no"
	case models.StageSalesOrder:
		return "manual_ref_no"
	case models.StageDeliveryChallan:
		return "manual_challan_no"
	case models.StageInvoice:
		return "manual_invoice_no"
	case models.StagePayment:
		return "manual_payment_no"
	}
	return ""
}
