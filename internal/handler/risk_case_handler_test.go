package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/middleware"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

var counselorClaims = &models.CapabilityClaims{TenantID: "tenant-1", UserID: "counselor-1", Role: models.RoleCounselor}

func newTestContext(method, target, body string, claims *models.CapabilityClaims, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["error"], &payload))
	return payload.Code
}

type riskCaseServiceMock struct {
	evaluation   *models.RiskEvaluation
	riskCase     *models.RiskCase
	cases        []models.RiskCase
	err          error
	lastScope    models.Scope
	lastID       string
	lastQuery    dto.RiskCaseQuery
	lastOpen     dto.OpenRiskCaseRequest
	lastClose    dto.CloseRiskCaseRequest
	lastOverride dto.OverrideSeverityRequest
}

func (m *riskCaseServiceMock) EvaluateStudent(ctx context.Context, scope models.Scope, studentID string) (*models.RiskEvaluation, error) {
	m.lastScope, m.lastID = scope, studentID
	return m.evaluation, m.err
}

func (m *riskCaseServiceMock) OpenCase(ctx context.Context, scope models.Scope, req dto.OpenRiskCaseRequest) (*models.RiskCase, error) {
	m.lastScope, m.lastOpen = scope, req
	return m.riskCase, m.err
}

func (m *riskCaseServiceMock) StartCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error) {
	m.lastScope, m.lastID = scope, id
	return m.riskCase, m.err
}

func (m *riskCaseServiceMock) CloseCase(ctx context.Context, scope models.Scope, id string, req dto.CloseRiskCaseRequest) (*models.RiskCase, error) {
	m.lastScope, m.lastID, m.lastClose = scope, id, req
	return m.riskCase, m.err
}

func (m *riskCaseServiceMock) OverrideSeverity(ctx context.Context, scope models.Scope, id string, req dto.OverrideSeverityRequest) (*models.RiskCase, error) {
	m.lastScope, m.lastID, m.lastOverride = scope, id, req
	return m.riskCase, m.err
}

func (m *riskCaseServiceMock) GetCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error) {
	m.lastScope, m.lastID = scope, id
	return m.riskCase, m.err
}

func (m *riskCaseServiceMock) ListCases(ctx context.Context, scope models.Scope, query dto.RiskCaseQuery) ([]models.RiskCase, error) {
	m.lastScope, m.lastQuery = scope, query
	return m.cases, m.err
}

func (m *riskCaseServiceMock) ActiveCases(ctx context.Context, scope models.Scope, studentID string) ([]models.RiskCase, error) {
	m.lastScope, m.lastID = scope, studentID
	return m.cases, m.err
}

func TestRiskCaseHandlerListBindsFilters(t *testing.T) {
	mockSvc := &riskCaseServiceMock{cases: []models.RiskCase{{ID: "case-1"}}}
	h := NewRiskCaseHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/risk-cases?student_id=s-1&status=open&status=in_progress&limit=10", "", counselorClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", mockSvc.lastQuery.StudentID)
	assert.Equal(t, []models.RiskCaseStatus{models.RiskCaseStatusOpen, models.RiskCaseStatusInProgress}, mockSvc.lastQuery.Statuses)
	assert.Equal(t, "tenant-1", mockSvc.lastScope.TenantID)
	assert.Equal(t, "counselor-1", mockSvc.lastScope.ActorID)
	assert.Contains(t, string(decodeEnvelope(t, w)["meta"]), `"count":1`)
}

func TestRiskCaseHandlerRequiresClaims(t *testing.T) {
	mockSvc := &riskCaseServiceMock{}
	h := NewRiskCaseHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/risk-cases/case-1", "", nil, gin.Param{Key: "id", Value: "case-1"})
	h.Get(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mockSvc.lastID)
}

func TestRiskCaseHandlerGetNotFound(t *testing.T) {
	h := NewRiskCaseHandler(&riskCaseServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "risk case not found")})

	c, w := newTestContext(http.MethodGet, "/risk-cases/missing", "", counselorClaims, gin.Param{Key: "id", Value: "missing"})
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, w))
}

func TestRiskCaseHandlerOpen(t *testing.T) {
	mockSvc := &riskCaseServiceMock{riskCase: &models.RiskCase{ID: "case-1", Status: models.RiskCaseStatusOpen}}
	h := NewRiskCaseHandler(mockSvc)

	body := `{"student_id":"s-1","risk_type":"behavior","severity":"medium","reason":"fight in class"}`
	c, w := newTestContext(http.MethodPost, "/risk-cases", body, counselorClaims)
	h.Open(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RiskTypeBehavior, mockSvc.lastOpen.RiskType)
	assert.Equal(t, models.RiskSeverityMedium, mockSvc.lastOpen.Severity)
}

func TestRiskCaseHandlerOpenConflict(t *testing.T) {
	h := NewRiskCaseHandler(&riskCaseServiceMock{err: appErrors.Clone(appErrors.ErrInvalidState, "active case exists")})

	body := `{"student_id":"s-1","risk_type":"behavior","severity":"medium","reason":"again"}`
	c, w := newTestContext(http.MethodPost, "/risk-cases", body, counselorClaims)
	h.Open(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, w))
}

func TestRiskCaseHandlerCloseInvalidBody(t *testing.T) {
	mockSvc := &riskCaseServiceMock{}
	h := NewRiskCaseHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/risk-cases/case-1/close", `{"notes":`, counselorClaims, gin.Param{Key: "id", Value: "case-1"})
	h.Close(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.lastID)
}

func TestRiskCaseHandlerOverrideSeverity(t *testing.T) {
	mockSvc := &riskCaseServiceMock{riskCase: &models.RiskCase{ID: "case-1", Severity: models.RiskSeverityLow}}
	h := NewRiskCaseHandler(mockSvc)

	c, w := newTestContext(http.MethodPut, "/risk-cases/case-1/severity", `{"severity":"low","notes":"parent meeting went well"}`, counselorClaims, gin.Param{Key: "id", Value: "case-1"})
	h.OverrideSeverity(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "case-1", mockSvc.lastID)
	assert.Equal(t, models.RiskSeverityLow, mockSvc.lastOverride.Severity)
}

func TestRiskCaseHandlerEvaluateUpstreamUnavailable(t *testing.T) {
	h := NewRiskCaseHandler(&riskCaseServiceMock{err: appErrors.Upstream(assert.AnError, "fact source unavailable")})

	c, w := newTestContext(http.MethodPost, "/students/s-1/risk/evaluate", "", counselorClaims, gin.Param{Key: "studentId", Value: "s-1"})
	h.Evaluate(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, appErrors.ErrUpstreamUnavailable.Code, errorCode(t, w))
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRiskCaseHandlerEvaluate(t *testing.T) {
	mockSvc := &riskCaseServiceMock{evaluation: &models.RiskEvaluation{StudentID: "s-1", Created: 2}}
	h := NewRiskCaseHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/students/s-1/risk/evaluate", "", counselorClaims, gin.Param{Key: "studentId", Value: "s-1"})
	h.Evaluate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", mockSvc.lastID)
	var evaluation models.RiskEvaluation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["data"], &evaluation))
	assert.Equal(t, 2, evaluation.Created)
}
