package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/logger"
	"github.com/noah-isme/sma-risk-engine/pkg/response"
)

// ContextUserKey is the gin context key storing capability claims.
const ContextUserKey = "currentUser"

// TokenValidator turns a bearer token into capability claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.CapabilityClaims, error)
}

// JWT protects routes by requiring a valid capability token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.ContextTenantKey, claims.TenantID)
		c.Next()
	}
}

// ClaimsFromContext returns the claims attached by JWT, if any.
func ClaimsFromContext(c *gin.Context) *models.CapabilityClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.CapabilityClaims)
	if !ok {
		return nil
	}
	return claims
}
