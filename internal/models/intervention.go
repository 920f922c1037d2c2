package models

import "time"

// InterventionStatus captures remediation task progress.
type InterventionStatus string

const (
	InterventionStatusPending    InterventionStatus = "pending"
	InterventionStatusInProgress InterventionStatus = "in_progress"
	InterventionStatusCompleted  InterventionStatus = "completed"
	InterventionStatusCancelled  InterventionStatus = "cancelled"
)

// Terminal reports whether the intervention can no longer change.
func (s InterventionStatus) Terminal() bool {
	return s == InterventionStatusCompleted || s == InterventionStatusCancelled
}

// CanTransitionTo validates intervention transitions.
func (s InterventionStatus) CanTransitionTo(next InterventionStatus) bool {
	switch s {
	case InterventionStatusPending:
		return next == InterventionStatusInProgress || next == InterventionStatusCompleted || next == InterventionStatusCancelled
	case InterventionStatusInProgress:
		return next == InterventionStatusCompleted || next == InterventionStatusCancelled
	default:
		return false
	}
}

// Intervention is a remediation task attached to a risk case.
type Intervention struct {
	ID          string             `db:"id" json:"id"`
	TenantID    string             `db:"tenant_id" json:"tenant_id"`
	RiskCaseID  string             `db:"risk_case_id" json:"risk_case_id"`
	Type        string             `db:"type" json:"type"`
	AssignedTo  string             `db:"assigned_to" json:"assigned_to"`
	DueDate     *time.Time         `db:"due_date" json:"due_date,omitempty"`
	Status      InterventionStatus `db:"status" json:"status"`
	Notes       *string            `db:"notes" json:"notes,omitempty"`
	CreatedBy   string             `db:"created_by" json:"created_by"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	CompletedAt *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}
