package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

type memInterventions struct {
	mu   sync.Mutex
	rows map[string]models.Intervention
}

func (m *memInterventions) Create(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[iv.ID] = *iv
	return nil
}

func (m *memInterventions) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.rows[id]
	if !ok || iv.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &iv, nil
}

func (m *memInterventions) ListByCase(ctx context.Context, tenantID, riskCaseID string) ([]models.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Intervention{}
	for _, iv := range m.rows {
		if iv.TenantID == tenantID && iv.RiskCaseID == riskCaseID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (m *memInterventions) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention, expected models.InterventionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[iv.ID]
	if !ok || current.Status != expected {
		return sql.ErrNoRows
	}
	m.rows[iv.ID] = *iv
	return nil
}

func newInterventionFixture(seed ...models.RiskCase) (*InterventionService, *memRiskCases, *memAudit) {
	cases := newMemRiskCases(seed...)
	audit := &memAudit{}
	svc := NewInterventionService(&memInterventions{rows: map[string]models.Intervention{}}, cases, newTestRecorder(audit), &txStub{}, sequentialIDs("iv"), nil, nil)
	svc.now = fixedClock
	return svc, cases, audit
}

func TestInterventionLifecycle(t *testing.T) {
	svc, _, audit := newInterventionFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityHigh))
	ctx := context.Background()

	iv, err := svc.Create(ctx, counselor, "case-a", dto.CreateInterventionRequest{Type: "home_visit", AssignedTo: "counselor-1"})
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusPending, iv.Status)
	assert.Equal(t, "case-a", iv.RiskCaseID)

	started, err := svc.Start(ctx, counselor, iv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusInProgress, started.Status)

	done, err := svc.Complete(ctx, counselor, iv.ID, "visited family")
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "visited family", *done.Notes)

	_, err = svc.Cancel(ctx, counselor, iv.ID, "")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	list, err := svc.List(ctx, counselor, "case-a")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, []string{
		models.AuditActionInterventionCreated,
		models.AuditActionInterventionStarted,
		models.AuditActionInterventionCompleted,
	}, audit.actions())
}

func TestInterventionRequiresActiveCase(t *testing.T) {
	closed := activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityHigh)
	closed.Status = models.RiskCaseStatusClosed
	svc, _, _ := newInterventionFixture(closed)

	_, err := svc.Create(context.Background(), counselor, "case-a", dto.CreateInterventionRequest{Type: "call", AssignedTo: "c"})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = svc.Create(context.Background(), counselor, "missing", dto.CreateInterventionRequest{Type: "call", AssignedTo: "c"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestInterventionCancelAfterCaseResolved(t *testing.T) {
	svc, cases, _ := newInterventionFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityHigh))
	ctx := context.Background()

	iv, err := svc.Create(ctx, counselor, "case-a", dto.CreateInterventionRequest{Type: "call", AssignedTo: "c"})
	require.NoError(t, err)

	rc := cases.rows["case-a"]
	rc.Status = models.RiskCaseStatusResolved
	cases.rows["case-a"] = rc

	_, err = svc.Start(ctx, counselor, iv.ID, "")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	cancelled, err := svc.Cancel(ctx, counselor, iv.ID, "case resolved")
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusCancelled, cancelled.Status)
}

func TestInterventionValidation(t *testing.T) {
	svc, _, _ := newInterventionFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityHigh))

	_, err := svc.Create(context.Background(), counselor, "case-a", dto.CreateInterventionRequest{Type: "call"})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Transition(context.Background(), counselor, "x", dto.InterventionTransitionRequest{Status: models.InterventionStatusPending})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
