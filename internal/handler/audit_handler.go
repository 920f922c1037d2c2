package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/internal/service"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/export"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

type auditTrail interface {
	ListAuditTrail(ctx context.Context, scope models.Scope, resourceType, resourceID string, limit, offset int) ([]models.AuditLogEntry, error)
}

// AuditHandler exposes the read side of the audit trail.
type AuditHandler struct {
	service auditTrail
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(service auditTrail) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Param resource_type query string false "Resource type"
// @Param resource_id query string false "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.AuditQuery
	if !bindQuery(c, &query) {
		return
	}
	entries, err := h.service.ListAuditTrail(c.Request.Context(), scope, query.ResourceType, query.ResourceID, query.Limit, query.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pageMeta(query.Limit, query.Offset, len(entries)))
}

// Export godoc
// @Summary Download audit entries as CSV
// @Tags Audit
// @Produce text/csv
// @Param resource_type query string false "Resource type"
// @Param resource_id query string false "Resource ID"
// @Success 200 {string} string "CSV"
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.AuditQuery
	if !bindQuery(c, &query) {
		return
	}
	entries, err := h.service.ListAuditTrail(c.Request.Context(), scope, query.ResourceType, query.ResourceID, query.Limit, query.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+scope.TenantID+".csv"))
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, service.AuditTrailTable(entries)); err != nil {
		_ = c.Error(appErrors.Internal(err, "failed to write audit export"))
	}
}
