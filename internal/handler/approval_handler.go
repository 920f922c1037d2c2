package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type approvalService interface {
	Submit(ctx context.Context, scope models.Scope, req dto.SubmitApprovalRequest) (*models.ApprovalRequest, error)
	Decide(ctx context.Context, scope models.Scope, requestID string, req dto.ApprovalDecisionRequest) (*models.ApprovalRequest, error)
	Resubmit(ctx context.Context, scope models.Scope, requestID string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, scope models.Scope, query dto.ApprovalQuery) ([]models.ApprovalRequest, error)
	Decisions(ctx context.Context, scope models.Scope, id string) ([]models.ApprovalDecisionRecord, error)
}

// ApprovalHandler exposes the approval workflow.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler builds a new handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Submit godoc
// @Summary Submit a governed action for approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApprovalRequest true "Approval payload"
// @Success 201 {object} response.Envelope
// @Router /approvals [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitApprovalRequest
	if !bindJSON(c, &req, "invalid approval payload") {
		return
	}
	created, err := h.service.Submit(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Param status query []string false "Statuses"
// @Param type query string false "Approval type"
// @Param requested_by query string false "Requester"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.ApprovalQuery
	if !bindQuery(c, &query) {
		return
	}
	list, err := h.service.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pageMeta(query.Limit, query.Offset, len(list)))
}

// Get godoc
// @Summary Get an approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req)
}

// Decide godoc
// @Summary Decide a pending approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param payload body dto.ApprovalDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.ApprovalDecisionRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}
	decided, err := h.service.Decide(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decided)
}

// Resubmit godoc
// @Summary Return a more_info or escalated request to pending
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/resubmit [post]
func (h *ApprovalHandler) Resubmit(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	req, err := h.service.Resubmit(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req)
}

// Decisions godoc
// @Summary List the decision history of a request
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/decisions [get]
func (h *ApprovalHandler) Decisions(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	records, err := h.service.Decisions(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records)
}
