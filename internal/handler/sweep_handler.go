package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/internal/service"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type tenantSweeper interface {
	SweepTenantRisk(ctx context.Context, tenantID string) (*models.SweepSummary, error)
}

type sweepTrigger interface {
	Trigger(tenantID string) error
}

// SweepHandler runs tenant-wide risk sweeps on demand.
type SweepHandler struct {
	sweeps    tenantSweeper
	scheduler sweepTrigger
}

// NewSweepHandler builds a new handler. scheduler may be nil, in which case
// asynchronous requests are refused.
func NewSweepHandler(sweeps tenantSweeper, scheduler sweepTrigger) *SweepHandler {
	return &SweepHandler{sweeps: sweeps, scheduler: scheduler}
}

// Run godoc
// @Summary Sweep every active student of the caller's tenant
// @Tags RiskCases
// @Accept json
// @Produce json
// @Param payload body dto.SweepRequest false "Sweep options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /risk/sweeps [post]
func (h *SweepHandler) Run(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.SweepRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid sweep payload") {
		return
	}

	if req.Async {
		if h.scheduler == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "background sweeps are disabled"))
			return
		}
		if err := h.scheduler.Trigger(scope.TenantID); err != nil {
			if errors.Is(err, service.ErrSweepInFlight) {
				response.Error(c, appErrors.Clone(appErrors.ErrInvalidState, "a sweep is already running for this tenant"))
				return
			}
			response.Error(c, appErrors.Internal(err, "failed to schedule sweep"))
			return
		}
		response.JSON(c, http.StatusAccepted, gin.H{"tenant_id": scope.TenantID, "status": "queued"})
		return
	}

	summary, err := h.sweeps.SweepTenantRisk(c.Request.Context(), scope.TenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
