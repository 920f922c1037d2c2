package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit actions recorded by the engine.
const (
	AuditActionRiskCaseOpened           = "risk_case.opened"
	AuditActionRiskCaseSeverityUpgraded = "risk_case.severity_upgraded"
	AuditActionRiskCaseSeverityOverride = "risk_case.severity_overridden"
	AuditActionRiskCaseStarted          = "risk_case.started"
	AuditActionRiskCaseResolved         = "risk_case.resolved"
	AuditActionRiskCaseClosed           = "risk_case.closed"
	AuditActionInterventionCreated      = "intervention.created"
	AuditActionInterventionStarted      = "intervention.started"
	AuditActionInterventionCompleted    = "intervention.completed"
	AuditActionInterventionCancelled    = "intervention.cancelled"
	AuditActionApprovalSubmitted        = "approval.submitted"
	AuditActionApprovalDecided          = "approval.decided"
	AuditActionApprovalResubmitted      = "approval.resubmitted"
	AuditActionMarkingRequestCreated    = "marking_request.created"
	AuditActionMarkingRequestFanout     = "marking_request.fanout"
	AuditActionMarkingRequestStatus     = "marking_request.status_changed"
	AuditActionNotificationRead         = "notification.read"
)

// AuditLogEntry is an append-only record of one mutation. ActorUserID is nil for system-initiated changes.
type AuditLogEntry struct {
	ID           string         `db:"id" json:"id"`
	TenantID     string         `db:"tenant_id" json:"tenant_id"`
	ActorUserID  *string        `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action       string         `db:"action" json:"action"`
	ResourceType string         `db:"resource_type" json:"resource_type"`
	ResourceID   string         `db:"resource_id" json:"resource_id"`
	BeforeState  types.JSONText `db:"before_state" json:"before_state,omitempty"`
	AfterState   types.JSONText `db:"after_state" json:"after_state,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit trail queries. TenantID is mandatory.
type AuditFilter struct {
	TenantID     string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}
