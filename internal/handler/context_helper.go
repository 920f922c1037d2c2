package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/middleware"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

// scopeFromContext derives the engine scope from the caller's claims. It
// writes a 401 and returns false when no claims are attached.
func scopeFromContext(c *gin.Context) (models.Scope, bool) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Scope{}, false
	}
	return claims.Scope(), true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}

func pageMeta(limit, offset, count int) map[string]interface{} {
	return map[string]interface{}{"limit": limit, "offset": offset, "count": count}
}
