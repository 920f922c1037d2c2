package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type riskCaseService interface {
	EvaluateStudent(ctx context.Context, scope models.Scope, studentID string) (*models.RiskEvaluation, error)
	OpenCase(ctx context.Context, scope models.Scope, req dto.OpenRiskCaseRequest) (*models.RiskCase, error)
	StartCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error)
	CloseCase(ctx context.Context, scope models.Scope, id string, req dto.CloseRiskCaseRequest) (*models.RiskCase, error)
	OverrideSeverity(ctx context.Context, scope models.Scope, id string, req dto.OverrideSeverityRequest) (*models.RiskCase, error)
	GetCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error)
	ListCases(ctx context.Context, scope models.Scope, query dto.RiskCaseQuery) ([]models.RiskCase, error)
	ActiveCases(ctx context.Context, scope models.Scope, studentID string) ([]models.RiskCase, error)
}

// RiskCaseHandler exposes risk case endpoints.
type RiskCaseHandler struct {
	service riskCaseService
}

// NewRiskCaseHandler builds a new handler.
func NewRiskCaseHandler(service riskCaseService) *RiskCaseHandler {
	return &RiskCaseHandler{service: service}
}

// List godoc
// @Summary List risk cases
// @Tags RiskCases
// @Produce json
// @Param student_id query string false "Student ID"
// @Param risk_type query string false "Risk type"
// @Param status query []string false "Statuses"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /risk-cases [get]
func (h *RiskCaseHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.RiskCaseQuery
	if !bindQuery(c, &query) {
		return
	}
	cases, err := h.service.ListCases(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cases, pageMeta(query.Limit, query.Offset, len(cases)))
}

// Get godoc
// @Summary Get a risk case
// @Tags RiskCases
// @Produce json
// @Param id path string true "Risk case ID"
// @Success 200 {object} response.Envelope
// @Router /risk-cases/{id} [get]
func (h *RiskCaseHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	rc, err := h.service.GetCase(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rc)
}

// Open godoc
// @Summary Open a risk case manually
// @Tags RiskCases
// @Accept json
// @Produce json
// @Param payload body dto.OpenRiskCaseRequest true "Risk case payload"
// @Success 201 {object} response.Envelope
// @Router /risk-cases [post]
func (h *RiskCaseHandler) Open(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.OpenRiskCaseRequest
	if !bindJSON(c, &req, "invalid risk case payload") {
		return
	}
	rc, err := h.service.OpenCase(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rc)
}

// Start godoc
// @Summary Start working a risk case
// @Tags RiskCases
// @Produce json
// @Param id path string true "Risk case ID"
// @Success 200 {object} response.Envelope
// @Router /risk-cases/{id}/start [post]
func (h *RiskCaseHandler) Start(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	rc, err := h.service.StartCase(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rc)
}

// Close godoc
// @Summary Close a risk case
// @Tags RiskCases
// @Accept json
// @Produce json
// @Param id path string true "Risk case ID"
// @Param payload body dto.CloseRiskCaseRequest true "Closing notes"
// @Success 200 {object} response.Envelope
// @Router /risk-cases/{id}/close [post]
func (h *RiskCaseHandler) Close(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CloseRiskCaseRequest
	if !bindJSON(c, &req, "invalid close payload") {
		return
	}
	rc, err := h.service.CloseCase(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rc)
}

// OverrideSeverity godoc
// @Summary Override a risk case severity
// @Tags RiskCases
// @Accept json
// @Produce json
// @Param id path string true "Risk case ID"
// @Param payload body dto.OverrideSeverityRequest true "Severity override"
// @Success 200 {object} response.Envelope
// @Router /risk-cases/{id}/severity [put]
func (h *RiskCaseHandler) OverrideSeverity(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.OverrideSeverityRequest
	if !bindJSON(c, &req, "invalid severity payload") {
		return
	}
	rc, err := h.service.OverrideSeverity(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rc)
}

// Evaluate godoc
// @Summary Evaluate one student's risk now
// @Tags RiskCases
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/risk/evaluate [post]
func (h *RiskCaseHandler) Evaluate(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	eval, err := h.service.EvaluateStudent(c.Request.Context(), scope, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eval)
}

// ActiveForStudent godoc
// @Summary List a student's active risk cases
// @Tags RiskCases
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/risk-cases [get]
func (h *RiskCaseHandler) ActiveForStudent(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	cases, err := h.service.ActiveCases(c.Request.Context(), scope, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cases)
}
