package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/export"
)

type auditStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
}

// AuditEvent describes one mutation. Before is nil for creations.
type AuditEvent struct {
	Action       string
	ResourceType string
	ResourceID   string
	Before       interface{}
	After        interface{}
}

// AuditRecorder writes the append-only audit trail. Record must be called with
// the executor of the transaction that performs the mutation.
type AuditRecorder struct {
	store auditStore
	ids   IDAllocator
	now   func() time.Time
}

// NewAuditRecorder constructs the recorder.
func NewAuditRecorder(store auditStore, ids IDAllocator) *AuditRecorder {
	if ids == nil {
		ids = UUIDAllocator{}
	}
	return &AuditRecorder{store: store, ids: ids, now: systemClock}
}

// Record appends one entry for event. A failure must abort the surrounding transaction.
func (r *AuditRecorder) Record(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, event AuditEvent) error {
	before, err := snapshot(event.Before)
	if err != nil {
		return err
	}
	after, err := snapshot(event.After)
	if err != nil {
		return err
	}
	entry := &models.AuditLogEntry{
		ID:           r.ids.NewID(),
		TenantID:     scope.TenantID,
		ActorUserID:  scope.Actor(),
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		BeforeState:  before,
		AfterState:   after,
		CreatedAt:    r.now(),
	}
	if err := r.store.Append(ctx, exec, entry); err != nil {
		return appErrors.Internal(err, "failed to record audit entry")
	}
	return nil
}

// ListAuditTrail returns a tenant's audit entries, optionally narrowed to one resource.
func (r *AuditRecorder) ListAuditTrail(ctx context.Context, scope models.Scope, resourceType, resourceID string, limit, offset int) ([]models.AuditLogEntry, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	if resourceID != "" && resourceType == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource_type is required when resource_id is set")
	}
	entries, err := r.store.List(ctx, models.AuditFilter{
		TenantID:     scope.TenantID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list audit trail")
	}
	return entries, nil
}

func snapshot(v interface{}) (types.JSONText, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit state: %w", err)
	}
	return types.JSONText(raw), nil
}

// AuditTrailTable flattens entries for CSV export. System actors are written as "system".
func AuditTrailTable(entries []models.AuditLogEntry) export.Table {
	table := export.Table{
		Headers: []string{"id", "created_at", "actor_user_id", "action", "resource_type", "resource_id", "before_state", "after_state"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		actor := "system"
		if e.ActorUserID != nil {
			actor = *e.ActorUserID
		}
		table.Rows = append(table.Rows, []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			actor,
			e.Action,
			e.ResourceType,
			e.ResourceID,
			string(e.BeforeState),
			string(e.AfterState),
		})
	}
	return table
}
