package models

import "time"

// MarkingScope is the abstract audience of a marking request.
type MarkingScope string

const (
	MarkingScopeTeacher MarkingScope = "teacher"
	MarkingScopeClass   MarkingScope = "class"
	MarkingScopeGrade   MarkingScope = "grade"
	MarkingScopeSubject MarkingScope = "subject"
)

// Valid reports whether s is a supported scope.
func (s MarkingScope) Valid() bool {
	switch s {
	case MarkingScopeTeacher, MarkingScopeClass, MarkingScopeGrade, MarkingScopeSubject:
		return true
	default:
		return false
	}
}

// MarkingStatus captures marking request progress.
type MarkingStatus string

const (
	MarkingStatusOpen         MarkingStatus = "open"
	MarkingStatusAcknowledged MarkingStatus = "acknowledged"
	MarkingStatusCompleted    MarkingStatus = "completed"
	MarkingStatusCancelled    MarkingStatus = "cancelled"
)

// CanTransitionTo validates marking request transitions.
func (s MarkingStatus) CanTransitionTo(next MarkingStatus) bool {
	switch s {
	case MarkingStatusOpen:
		return next == MarkingStatusAcknowledged || next == MarkingStatusCompleted || next == MarkingStatusCancelled
	case MarkingStatusAcknowledged:
		return next == MarkingStatusCompleted || next == MarkingStatusCancelled
	default:
		return false
	}
}

// MarkingRequest asks a scoped group of teachers to act.
type MarkingRequest struct {
	ID               string        `db:"id" json:"id"`
	TenantID         string        `db:"tenant_id" json:"tenant_id"`
	TargetScope      MarkingScope  `db:"target_scope" json:"target_scope"`
	ScopeReferenceID string        `db:"scope_reference_id" json:"scope_reference_id"`
	Message          string        `db:"message" json:"message"`
	DueAt            *time.Time    `db:"due_at" json:"due_at,omitempty"`
	Status           MarkingStatus `db:"status" json:"status"`
	CreatedBy        string        `db:"created_by" json:"created_by"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// FanoutResult reports a marking request together with its delivery counts.
type FanoutResult struct {
	Request    *MarkingRequest `json:"request"`
	Recipients int             `json:"recipients"`
	Inserted   int             `json:"inserted"`
}
