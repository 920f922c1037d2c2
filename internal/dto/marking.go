package dto

import (
	"time"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// CreateMarkingRequest asks every teacher in a scope to act.
type CreateMarkingRequest struct {
	TargetScope      models.MarkingScope `json:"target_scope" validate:"required,oneof=teacher class grade subject"`
	ScopeReferenceID string              `json:"scope_reference_id" validate:"required"`
	Message          string              `json:"message" validate:"required,max=2000"`
	DueAt            *time.Time          `json:"due_at"`
}

// UpdateMarkingStatusRequest moves a marking request along its lifecycle.
type UpdateMarkingStatusRequest struct {
	Status models.MarkingStatus `json:"status" validate:"required,oneof=acknowledged completed cancelled"`
}

// NotificationQuery filters the caller's inbox.
type NotificationQuery struct {
	UnreadOnly bool `form:"unread"`
	Limit      int  `form:"limit"`
	Offset     int  `form:"offset"`
}

// AuditQuery filters the audit trail.
type AuditQuery struct {
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}
