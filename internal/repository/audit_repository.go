package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// AuditRepository appends to and reads the audit trail. It deliberately has no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one entry using exec so it commits with the mutation it describes.
func (r *AuditRepository) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLogEntry) error {
	const query = `INSERT INTO audit_logs
	(id, tenant_id, actor_user_id, action, resource_type, resource_id, before_state, after_state, created_at)
	VALUES (:id, :tenant_id, :actor_user_id, :action, :resource_type, :resource_id, :before_state, :after_state, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, entry); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// List returns entries for a tenant, newest first, optionally narrowed to a resource.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.TenantID}
	builder.WriteString(`SELECT id, tenant_id, actor_user_id, action, resource_type, resource_id, before_state, after_state, created_at
FROM audit_logs WHERE tenant_id = $1`)
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		builder.WriteString(fmt.Sprintf(" AND resource_type = $%d", len(args)))
	}
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		builder.WriteString(fmt.Sprintf(" AND resource_id = $%d", len(args)))
	}
	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset))

	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
