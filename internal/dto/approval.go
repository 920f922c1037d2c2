package dto

import "github.com/noah-isme/sma-risk-engine/internal/models"

// SubmitApprovalRequest opens a governed action for review.
type SubmitApprovalRequest struct {
	Type       models.ApprovalType     `json:"type" validate:"required,approval_type"`
	EntityType string                  `json:"entity_type" validate:"required"`
	EntityID   string                  `json:"entity_id" validate:"required"`
	Priority   models.ApprovalPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// ApprovalDecisionRequest carries a reviewer's verdict. Notes are mandatory.
type ApprovalDecisionRequest struct {
	Decision models.ApprovalDecision `json:"decision" validate:"required,oneof=approve reject request_info escalate"`
	Notes    string                  `json:"notes" validate:"required"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Statuses    []models.ApprovalStatus `form:"status"`
	Type        models.ApprovalType     `form:"type"`
	RequestedBy string                  `form:"requested_by"`
	Limit       int                     `form:"limit"`
	Offset      int                     `form:"offset"`
}
