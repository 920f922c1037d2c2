package models

import "time"

// ApprovalType tags the governed action awaiting a decision.
type ApprovalType string

const (
	ApprovalTypeWriteOff          ApprovalType = "write_off"
	ApprovalTypeTransfer          ApprovalType = "transfer"
	ApprovalTypeAdmissionOverride ApprovalType = "admission_override"
	ApprovalTypeRoleChange        ApprovalType = "role_change"
)

// Valid reports whether t is a governed action type.
func (t ApprovalType) Valid() bool {
	switch t {
	case ApprovalTypeWriteOff, ApprovalTypeTransfer, ApprovalTypeAdmissionOverride, ApprovalTypeRoleChange:
		return true
	default:
		return false
	}
}

// ApprovalPriority is advisory and never gates transitions.
type ApprovalPriority string

const (
	ApprovalPriorityLow    ApprovalPriority = "low"
	ApprovalPriorityMedium ApprovalPriority = "medium"
	ApprovalPriorityHigh   ApprovalPriority = "high"
)

// Valid reports whether p is a known priority.
func (p ApprovalPriority) Valid() bool {
	return p == ApprovalPriorityLow || p == ApprovalPriorityMedium || p == ApprovalPriorityHigh
}

// ApprovalStatus captures the approval state machine.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusMoreInfo  ApprovalStatus = "more_info"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
)

// Terminal reports whether the request is final.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Resubmittable reports whether the request may be explicitly returned to pending.
func (s ApprovalStatus) Resubmittable() bool {
	return s == ApprovalStatusMoreInfo || s == ApprovalStatusEscalated
}

// ApprovalDecision is the reviewer's verdict.
type ApprovalDecision string

const (
	ApprovalDecisionApprove     ApprovalDecision = "approve"
	ApprovalDecisionReject      ApprovalDecision = "reject"
	ApprovalDecisionRequestInfo ApprovalDecision = "request_info"
	ApprovalDecisionEscalate    ApprovalDecision = "escalate"
)

var decisionTargets = map[ApprovalDecision]ApprovalStatus{
	ApprovalDecisionApprove:     ApprovalStatusApproved,
	ApprovalDecisionReject:      ApprovalStatusRejected,
	ApprovalDecisionRequestInfo: ApprovalStatusMoreInfo,
	ApprovalDecisionEscalate:    ApprovalStatusEscalated,
}

// TargetStatus maps a decision onto the status it produces.
func (d ApprovalDecision) TargetStatus() (ApprovalStatus, bool) {
	status, ok := decisionTargets[d]
	return status, ok
}

// ApprovalRequest is a governed action awaiting or carrying a human decision.
// Version increments on every write and guards concurrent decisions.
type ApprovalRequest struct {
	ID          string            `db:"id" json:"id"`
	TenantID    string            `db:"tenant_id" json:"tenant_id"`
	Type        ApprovalType      `db:"type" json:"type"`
	EntityType  string            `db:"entity_type" json:"entity_type"`
	EntityID    string            `db:"entity_id" json:"entity_id"`
	RequestedBy string            `db:"requested_by" json:"requested_by"`
	SubmittedAt time.Time         `db:"submitted_at" json:"submitted_at"`
	Priority    ApprovalPriority  `db:"priority" json:"priority"`
	Status      ApprovalStatus    `db:"status" json:"status"`
	Decision    *ApprovalDecision `db:"decision" json:"decision,omitempty"`
	DecidedBy   *string           `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt   *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
	Notes       *string           `db:"notes" json:"notes,omitempty"`
	Version     int               `db:"version" json:"version"`
}

// ApprovalDecisionRecord is an append-only history row of every decision taken on a request.
type ApprovalDecisionRecord struct {
	ID                string           `db:"id" json:"id"`
	TenantID          string           `db:"tenant_id" json:"tenant_id"`
	ApprovalRequestID string           `db:"approval_request_id" json:"approval_request_id"`
	Decision          ApprovalDecision `db:"decision" json:"decision"`
	Status            ApprovalStatus   `db:"status" json:"status"`
	DecidedBy         string           `db:"decided_by" json:"decided_by"`
	DecidedAt         time.Time        `db:"decided_at" json:"decided_at"`
	Notes             string           `db:"notes" json:"notes"`
}

// ApprovalFilter constrains approval listings. TenantID is mandatory.
type ApprovalFilter struct {
	TenantID    string
	Statuses    []ApprovalStatus
	Type        ApprovalType
	RequestedBy string
	Limit       int
	Offset      int
}
