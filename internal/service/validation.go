package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

// NewValidator returns a validator with the engine's enum tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("risk_type", func(fl validator.FieldLevel) bool {
		return models.RiskType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("risk_severity", func(fl validator.FieldLevel) bool {
		return models.RiskSeverity(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("approval_type", func(fl validator.FieldLevel) bool {
		return models.ApprovalType(fl.Field().String()).Valid()
	})
	return validate
}

func validatePayload(validate *validator.Validate, payload interface{}, message string) error {
	if err := validate.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}
