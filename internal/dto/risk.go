package dto

import (
	"time"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// OpenRiskCaseRequest is a staff request to open a case by hand.
type OpenRiskCaseRequest struct {
	StudentID string              `json:"student_id" validate:"required"`
	RiskType  models.RiskType     `json:"risk_type" validate:"required,risk_type"`
	Severity  models.RiskSeverity `json:"severity" validate:"required,risk_severity"`
	Reason    string              `json:"reason" validate:"required"`
	Notes     string              `json:"notes"`
}

// CloseRiskCaseRequest closes a case manually.
type CloseRiskCaseRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// OverrideSeverityRequest changes severity in either direction with a justification.
type OverrideSeverityRequest struct {
	Severity models.RiskSeverity `json:"severity" validate:"required,risk_severity"`
	Notes    string              `json:"notes" validate:"required"`
}

// RiskCaseQuery mirrors supported listing filters.
type RiskCaseQuery struct {
	StudentID string                  `form:"student_id"`
	RiskType  models.RiskType         `form:"risk_type"`
	Statuses  []models.RiskCaseStatus `form:"status"`
	Limit     int                     `form:"limit"`
	Offset    int                     `form:"offset"`
}

// CreateInterventionRequest attaches a remediation task to a case.
type CreateInterventionRequest struct {
	Type       string     `json:"type" validate:"required"`
	AssignedTo string     `json:"assigned_to" validate:"required"`
	DueDate    *time.Time `json:"due_date"`
	Notes      string     `json:"notes"`
}

// InterventionTransitionRequest moves an intervention to a new status.
type InterventionTransitionRequest struct {
	Status models.InterventionStatus `json:"status" validate:"required,oneof=in_progress completed cancelled"`
	Notes  string                    `json:"notes"`
}

// SweepRequest triggers a tenant-wide evaluation.
type SweepRequest struct {
	Async bool `json:"async"`
}
