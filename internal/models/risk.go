package models

import "time"

// SystemActor is recorded as opener when a case is created by automated evaluation.
const SystemActor = "system"

// RiskType enumerates the categories a student can be flagged for.
type RiskType string

const (
	RiskTypeAttendance RiskType = "attendance"
	RiskTypeAcademic   RiskType = "academic"
	RiskTypeFinancial  RiskType = "financial"
	RiskTypeBehavior   RiskType = "behavior"
	RiskTypeMulti      RiskType = "multi"
)

// EvaluatedRiskTypes are reconciled on every evaluation, in this order.
// Behaviour cases are raised by staff only and never touched by evaluation.
var EvaluatedRiskTypes = []RiskType{RiskTypeAttendance, RiskTypeAcademic, RiskTypeFinancial, RiskTypeMulti}

// Valid reports whether t is a known risk type.
func (t RiskType) Valid() bool {
	switch t {
	case RiskTypeAttendance, RiskTypeAcademic, RiskTypeFinancial, RiskTypeBehavior, RiskTypeMulti:
		return true
	default:
		return false
	}
}

// RiskSeverity is the coarse tier assigned to a detected risk.
type RiskSeverity string

const (
	RiskSeverityLow      RiskSeverity = "low"
	RiskSeverityMedium   RiskSeverity = "medium"
	RiskSeverityHigh     RiskSeverity = "high"
	RiskSeverityCritical RiskSeverity = "critical"
)

// Rank orders severities; unknown values rank 0.
func (s RiskSeverity) Rank() int {
	switch s {
	case RiskSeverityLow:
		return 1
	case RiskSeverityMedium:
		return 2
	case RiskSeverityHigh:
		return 3
	case RiskSeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s RiskSeverity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b RiskSeverity) RiskSeverity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RiskCaseStatus captures the case lifecycle.
type RiskCaseStatus string

const (
	RiskCaseStatusOpen       RiskCaseStatus = "open"
	RiskCaseStatusInProgress RiskCaseStatus = "in_progress"
	RiskCaseStatusResolved   RiskCaseStatus = "resolved"
	RiskCaseStatusClosed     RiskCaseStatus = "closed"
)

// ActiveRiskCaseStatuses are the statuses covered by the one-active-case rule.
var ActiveRiskCaseStatuses = []RiskCaseStatus{RiskCaseStatusOpen, RiskCaseStatusInProgress}

// Active reports whether the case still counts as open.
func (s RiskCaseStatus) Active() bool {
	return s == RiskCaseStatusOpen || s == RiskCaseStatusInProgress
}

// Terminal reports whether the case can no longer change.
func (s RiskCaseStatus) Terminal() bool {
	return s == RiskCaseStatusResolved || s == RiskCaseStatusClosed
}

// CanTransitionTo validates the case state machine.
func (s RiskCaseStatus) CanTransitionTo(next RiskCaseStatus) bool {
	switch s {
	case RiskCaseStatusOpen:
		return next == RiskCaseStatusInProgress || next == RiskCaseStatusResolved || next == RiskCaseStatusClosed
	case RiskCaseStatusInProgress:
		return next == RiskCaseStatusResolved || next == RiskCaseStatusClosed
	default:
		return false
	}
}

// RiskCase tracks one detected at-risk condition for a student and category.
type RiskCase struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	StudentID string         `db:"student_id" json:"student_id"`
	RiskType  RiskType       `db:"risk_type" json:"risk_type"`
	Severity  RiskSeverity   `db:"severity" json:"severity"`
	Status    RiskCaseStatus `db:"status" json:"status"`
	Reason    string         `db:"reason" json:"reason"`
	OpenedBy  string         `db:"opened_by" json:"opened_by"`
	OpenedAt  time.Time      `db:"opened_at" json:"opened_at"`
	ClosedBy  *string        `db:"closed_by" json:"closed_by,omitempty"`
	ClosedAt  *time.Time     `db:"closed_at" json:"closed_at,omitempty"`
	Notes     *string        `db:"notes" json:"notes,omitempty"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// RiskCaseFilter constrains case listings. TenantID is mandatory.
type RiskCaseFilter struct {
	TenantID  string
	StudentID string
	RiskType  RiskType
	Statuses  []RiskCaseStatus
	Limit     int
	Offset    int
}

// RiskSignal is one classification produced by the scorer.
type RiskSignal struct {
	Type     RiskType     `json:"type"`
	Severity RiskSeverity `json:"severity"`
	Reason   string       `json:"reason"`
}

// RiskEvaluation is the outcome of reconciling one student's cases.
type RiskEvaluation struct {
	StudentID string     `json:"student_id"`
	Cases     []RiskCase `json:"cases"`
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Resolved  int        `json:"resolved"`
	Unchanged int        `json:"unchanged"`
}

// SweepWarning records a student whose evaluation was skipped during a sweep.
type SweepWarning struct {
	StudentID string `json:"student_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// SweepSummary reports the outcome of a tenant-wide risk sweep.
type SweepSummary struct {
	TenantID   string         `json:"tenant_id"`
	Students   int            `json:"students"`
	Evaluated  int            `json:"evaluated"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Resolved   int            `json:"resolved"`
	Unchanged  int            `json:"unchanged"`
	Warnings   []SweepWarning `json:"warnings,omitempty"`
	Cancelled  bool           `json:"cancelled"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
