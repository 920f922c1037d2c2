package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type fanoutService interface {
	CreateMarkingRequest(ctx context.Context, scope models.Scope, req dto.CreateMarkingRequest) (*models.FanoutResult, error)
	Refanout(ctx context.Context, scope models.Scope, id string) (*models.FanoutResult, error)
	UpdateMarkingStatus(ctx context.Context, scope models.Scope, id string, req dto.UpdateMarkingStatusRequest) (*models.MarkingRequest, error)
	GetMarkingRequest(ctx context.Context, scope models.Scope, id string) (*models.MarkingRequest, error)
	ListNotifications(ctx context.Context, scope models.Scope, query dto.NotificationQuery) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, scope models.Scope, id string) (*models.Notification, error)
}

// MarkingHandler exposes marking requests and the notification inbox.
type MarkingHandler struct {
	service fanoutService
}

// NewMarkingHandler builds a new handler.
func NewMarkingHandler(service fanoutService) *MarkingHandler {
	return &MarkingHandler{service: service}
}

// Create godoc
// @Summary Create a marking request and notify its audience
// @Tags MarkingRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateMarkingRequest true "Marking request payload"
// @Success 201 {object} response.Envelope
// @Router /marking-requests [post]
func (h *MarkingHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateMarkingRequest
	if !bindJSON(c, &req, "invalid marking request payload") {
		return
	}
	result, err := h.service.CreateMarkingRequest(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get godoc
// @Summary Get a marking request
// @Tags MarkingRequests
// @Produce json
// @Param id path string true "Marking request ID"
// @Success 200 {object} response.Envelope
// @Router /marking-requests/{id} [get]
func (h *MarkingHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	mr, err := h.service.GetMarkingRequest(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mr)
}

// Refanout godoc
// @Summary Deliver a marking request to teachers added since creation
// @Tags MarkingRequests
// @Produce json
// @Param id path string true "Marking request ID"
// @Success 200 {object} response.Envelope
// @Router /marking-requests/{id}/fanout [post]
func (h *MarkingHandler) Refanout(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Refanout(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// UpdateStatus godoc
// @Summary Move a marking request along its lifecycle
// @Tags MarkingRequests
// @Accept json
// @Produce json
// @Param id path string true "Marking request ID"
// @Param payload body dto.UpdateMarkingStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /marking-requests/{id}/status [patch]
func (h *MarkingHandler) UpdateStatus(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateMarkingStatusRequest
	if !bindJSON(c, &req, "invalid marking status payload") {
		return
	}
	mr, err := h.service.UpdateMarkingStatus(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mr)
}

// Notifications godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *MarkingHandler) Notifications(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.NotificationQuery
	if !bindQuery(c, &query) {
		return
	}
	list, err := h.service.ListNotifications(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pageMeta(query.Limit, query.Offset, len(list)))
}

// MarkRead godoc
// @Summary Mark one of the caller's notifications read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *MarkingHandler) MarkRead(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	n, err := h.service.MarkNotificationRead(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, n)
}
