package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

const approvalColumns = `id, tenant_id, type, entity_type, entity_id, requested_by, submitted_at, priority, status,
       decision, decided_by, decided_at, notes, version`

// ApprovalRepository persists approval requests and their decision history.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a pending request.
func (r *ApprovalRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ApprovalRequest) error {
	const query = `INSERT INTO approval_requests
	(id, tenant_id, type, entity_type, entity_id, requested_by, submitted_at, priority, status, decision, decided_by, decided_at, notes, version)
	VALUES (:id, :tenant_id, :type, :entity_type, :entity_id, :requested_by, :submitted_at, :priority, :status, :decision, :decided_by, :decided_at, :notes, :version)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, req); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// GetByID fetches a request scoped to the tenant.
func (r *ApprovalRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE tenant_id = $1 AND id = $2`
	var req models.ApprovalRequest
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &req, query, tenantID, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, oldest submissions first within priority.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.TenantID}
	builder.WriteString(`SELECT ` + approvalColumns + ` FROM approval_requests WHERE tenant_id = $1`)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		builder.WriteString(fmt.Sprintf(" AND requested_by = $%d", len(args)))
	}
	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, submitted_at ASC LIMIT %d OFFSET %d`, limit, offset))

	var list []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &list, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return list, nil
}

// ApplyDecisionParams groups the decision columns written together.
type ApplyDecisionParams struct {
	ID              string
	TenantID        string
	ExpectedVersion int
	Status          models.ApprovalStatus
	Decision        models.ApprovalDecision
	DecidedBy       string
	DecidedAt       time.Time
	Notes           string
}

// ApplyDecision sets status and decision fields only while the request is still
// pending at the expected version. It returns sql.ErrNoRows when that no longer holds.
func (r *ApprovalRepository) ApplyDecision(ctx context.Context, exec sqlx.ExtContext, params ApplyDecisionParams) error {
	query := fmt.Sprintf(`UPDATE approval_requests
SET status = :status, decision = :decision, decided_by = :decided_by, decided_at = :decided_at, notes = :notes, version = version + 1
WHERE tenant_id = :tenant_id AND id = :id AND version = :expected_version AND status = '%s'`, models.ApprovalStatusPending)
	result, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, map[string]interface{}{
		"id":               params.ID,
		"tenant_id":        params.TenantID,
		"expected_version": params.ExpectedVersion,
		"status":           params.Status,
		"decision":         params.Decision,
		"decided_by":       params.DecidedBy,
		"decided_at":       params.DecidedAt,
		"notes":            params.Notes,
	})
	if err != nil {
		return fmt.Errorf("apply approval decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReturnToPending moves a more_info/escalated request back to pending and clears
// the live decision fields; the interim decision stays in approval_decisions.
func (r *ApprovalRepository) ReturnToPending(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, expectedVersion int) error {
	query := fmt.Sprintf(`UPDATE approval_requests
SET status = '%s', decision = NULL, decided_by = NULL, decided_at = NULL, notes = NULL, version = version + 1
WHERE tenant_id = $1 AND id = $2 AND version = $3 AND status IN ('%s', '%s')`,
		models.ApprovalStatusPending, models.ApprovalStatusMoreInfo, models.ApprovalStatusEscalated)
	result, err := pick(r.db, exec).ExecContext(ctx, query, tenantID, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("return approval to pending: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval resubmit rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InsertDecisionRecord appends to the decision history.
func (r *ApprovalRepository) InsertDecisionRecord(ctx context.Context, exec sqlx.ExtContext, rec *models.ApprovalDecisionRecord) error {
	const query = `INSERT INTO approval_decisions
	(id, tenant_id, approval_request_id, decision, status, decided_by, decided_at, notes)
	VALUES (:id, :tenant_id, :approval_request_id, :decision, :status, :decided_by, :decided_at, :notes)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, rec); err != nil {
		return fmt.Errorf("insert approval decision: %w", err)
	}
	return nil
}

// ListDecisions returns the decision history of a request in order.
func (r *ApprovalRepository) ListDecisions(ctx context.Context, tenantID, requestID string) ([]models.ApprovalDecisionRecord, error) {
	const query = `SELECT id, tenant_id, approval_request_id, decision, status, decided_by, decided_at, notes
FROM approval_decisions WHERE tenant_id = $1 AND approval_request_id = $2 ORDER BY decided_at ASC`
	var list []models.ApprovalDecisionRecord
	if err := r.db.SelectContext(ctx, &list, query, tenantID, requestID); err != nil {
		return nil, fmt.Errorf("list approval decisions: %w", err)
	}
	return list, nil
}
