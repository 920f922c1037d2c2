package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

const markingColumns = `id, tenant_id, target_scope, scope_reference_id, message, due_at, status, created_by, created_at, updated_at`

// MarkingRequestRepository persists marking requests.
type MarkingRequestRepository struct {
	db *sqlx.DB
}

// NewMarkingRequestRepository constructs the repository.
func NewMarkingRequestRepository(db *sqlx.DB) *MarkingRequestRepository {
	return &MarkingRequestRepository{db: db}
}

// Create inserts a marking request.
func (r *MarkingRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, mr *models.MarkingRequest) error {
	const query = `INSERT INTO marking_requests
	(id, tenant_id, target_scope, scope_reference_id, message, due_at, status, created_by, created_at, updated_at)
	VALUES (:id, :tenant_id, :target_scope, :scope_reference_id, :message, :due_at, :status, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, mr); err != nil {
		return fmt.Errorf("create marking request: %w", err)
	}
	return nil
}

// GetByID fetches a marking request scoped to the tenant.
func (r *MarkingRequestRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.MarkingRequest, error) {
	query := `SELECT ` + markingColumns + ` FROM marking_requests WHERE tenant_id = $1 AND id = $2`
	var mr models.MarkingRequest
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &mr, query, tenantID, id); err != nil {
		return nil, err
	}
	return &mr, nil
}

// UpdateStatus transitions a request when the stored status still equals expected.
func (r *MarkingRequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, expected, next models.MarkingStatus, at time.Time) error {
	const query = `UPDATE marking_requests SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4 AND status = $5`
	result, err := pick(r.db, exec).ExecContext(ctx, query, next, at, tenantID, id, expected)
	if err != nil {
		return fmt.Errorf("update marking request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check marking request rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
