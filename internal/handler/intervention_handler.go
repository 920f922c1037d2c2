package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type interventionService interface {
	Create(ctx context.Context, scope models.Scope, riskCaseID string, req dto.CreateInterventionRequest) (*models.Intervention, error)
	Transition(ctx context.Context, scope models.Scope, id string, req dto.InterventionTransitionRequest) (*models.Intervention, error)
	List(ctx context.Context, scope models.Scope, riskCaseID string) ([]models.Intervention, error)
}

// InterventionHandler exposes intervention endpoints.
type InterventionHandler struct {
	service interventionService
}

// NewInterventionHandler builds a new handler.
func NewInterventionHandler(service interventionService) *InterventionHandler {
	return &InterventionHandler{service: service}
}

// Create godoc
// @Summary Attach an intervention to a risk case
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Risk case ID"
// @Param payload body dto.CreateInterventionRequest true "Intervention payload"
// @Success 201 {object} response.Envelope
// @Router /risk-cases/{id}/interventions [post]
func (h *InterventionHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateInterventionRequest
	if !bindJSON(c, &req, "invalid intervention payload") {
		return
	}
	iv, err := h.service.Create(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, iv)
}

// List godoc
// @Summary List a risk case's interventions
// @Tags Interventions
// @Produce json
// @Param id path string true "Risk case ID"
// @Success 200 {object} response.Envelope
// @Router /risk-cases/{id}/interventions [get]
func (h *InterventionHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	list, err := h.service.List(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Transition godoc
// @Summary Move an intervention to a new status
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Intervention ID"
// @Param payload body dto.InterventionTransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Router /interventions/{id} [patch]
func (h *InterventionHandler) Transition(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.InterventionTransitionRequest
	if !bindJSON(c, &req, "invalid intervention transition") {
		return
	}
	iv, err := h.service.Transition(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, iv)
}
