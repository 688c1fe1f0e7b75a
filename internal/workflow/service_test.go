package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/config"
	"example.com/backoffice/services/salesflow/internal/metrics"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/tracing"
)

func testService(t *testing.T, gw *MockGateway) *Service {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)

	return &Service{
		gw:       gw,
		gen:      numbering.NewGenerator(),
		metrics:  metrics.NewMetrics(),
		tracer:   tracer,
		sessions: make(map[uuid.UUID]*session),
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := testService(t, new(MockGateway))

	id, state, err := svc.OpenSession(context.Background(), "co-1", fullCaps())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.Equal(t, "co-1", state.Aggregate.CompanyID)

	ref := "Q-5"
	state, err = svc.UpdateStep(id, StepPatch{ManualRef: &ref})
	require.NoError(t, err)
	require.Equal(t, "Q-5", state.Aggregate.Steps.Quotation.ManualQuoNo)

	require.NoError(t, svc.CloseSession(id))
	_, err = svc.GetState(id)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// Closing twice reports the missing session
	require.ErrorIs(t, svc.CloseSession(id), ErrSessionNotFound)
}

func TestOpenSessionRequiresViewCapability(t *testing.T) {
	svc := testService(t, new(MockGateway))

	_, _, err := svc.OpenSession(context.Background(), "co-1", Capabilities{CanCreate: true})
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestPruneExpiredClosesIdleSessions(t *testing.T) {
	svc := testService(t, new(MockGateway))

	stale, _, err := svc.OpenSession(context.Background(), "co-1", fullCaps())
	require.NoError(t, err)
	fresh, _, err := svc.OpenSession(context.Background(), "co-1", fullCaps())
	require.NoError(t, err)

	svc.mu.Lock()
	svc.sessions[stale].lastAccess = time.Now().Add(-time.Hour)
	svc.mu.Unlock()

	require.Equal(t, 1, svc.PruneExpired(30*time.Minute))

	_, err = svc.GetState(stale)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.GetState(fresh)
	require.NoError(t, err)
}
