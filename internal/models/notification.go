package models

import "time"

// NotificationType classifies what produced a notification.
type NotificationType string

const (
	NotificationTypeMarkingRequest   NotificationType = "marking_request"
	NotificationTypeApprovalDecision NotificationType = "approval_decision"
	NotificationTypeRiskCaseOpened   NotificationType = "risk_case_opened"
)

// Resource types used for entity references and audit entries.
const (
	ResourceRiskCase        = "risk_case"
	ResourceIntervention    = "intervention"
	ResourceApprovalRequest = "approval_request"
	ResourceMarkingRequest  = "marking_request"
	ResourceNotification    = "notification"
)

// Notification is immutable once created except for ReadAt. It is unique per
// (tenant, type, entity, recipient) so repeated delivery attempts collapse.
type Notification struct {
	ID              string           `db:"id" json:"id"`
	TenantID        string           `db:"tenant_id" json:"tenant_id"`
	RecipientUserID string           `db:"recipient_user_id" json:"recipient_user_id"`
	Type            NotificationType `db:"type" json:"type"`
	Title           string           `db:"title" json:"title"`
	Body            string           `db:"body" json:"body"`
	EntityType      string           `db:"entity_type" json:"entity_type"`
	EntityID        string           `db:"entity_id" json:"entity_id"`
	ReadAt          *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter constrains inbox queries.
type NotificationFilter struct {
	TenantID        string
	RecipientUserID string
	UnreadOnly      bool
	Limit           int
	Offset          int
}
