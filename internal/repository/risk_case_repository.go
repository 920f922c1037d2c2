package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

const riskCaseColumns = `id, tenant_id, student_id, risk_type, severity, status, reason, opened_by, opened_at,
       closed_by, closed_at, notes, updated_at`

// RiskCaseRepository persists risk cases. A partial unique index on
// (tenant_id, student_id, risk_type) WHERE status IN ('open','in_progress')
// backs the one-active-case rule.
type RiskCaseRepository struct {
	db *sqlx.DB
}

// NewRiskCaseRepository constructs the repository.
func NewRiskCaseRepository(db *sqlx.DB) *RiskCaseRepository {
	return &RiskCaseRepository{db: db}
}

// FindActive returns the open or in-progress case for the key, or nil when none exists.
func (r *RiskCaseRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, tenantID, studentID string, riskType models.RiskType) (*models.RiskCase, error) {
	query := `SELECT ` + riskCaseColumns + `
FROM risk_cases
WHERE tenant_id = $1 AND student_id = $2 AND risk_type = $3 AND status IN ('open', 'in_progress')
FOR UPDATE`
	var rc models.RiskCase
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &rc, query, tenantID, studentID, riskType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active risk case: %w", err)
	}
	return &rc, nil
}

// GetByID fetches a case scoped to the tenant.
func (r *RiskCaseRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error) {
	query := `SELECT ` + riskCaseColumns + ` FROM risk_cases WHERE tenant_id = $1 AND id = $2`
	var rc models.RiskCase
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &rc, query, tenantID, id); err != nil {
		return nil, err
	}
	return &rc, nil
}

// GetForShare fetches a case and holds a share lock on it until exec commits,
// so the case cannot be closed while dependent rows are written.
func (r *RiskCaseRepository) GetForShare(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error) {
	query := `SELECT ` + riskCaseColumns + ` FROM risk_cases WHERE tenant_id = $1 AND id = $2 FOR SHARE`
	var rc models.RiskCase
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &rc, query, tenantID, id); err != nil {
		return nil, err
	}
	return &rc, nil
}

// ListActiveByStudent returns every open or in-progress case for a student.
func (r *RiskCaseRepository) ListActiveByStudent(ctx context.Context, tenantID, studentID string) ([]models.RiskCase, error) {
	query := `SELECT ` + riskCaseColumns + `
FROM risk_cases
WHERE tenant_id = $1 AND student_id = $2 AND status IN ('open', 'in_progress')
ORDER BY risk_type`
	var cases []models.RiskCase
	if err := r.db.SelectContext(ctx, &cases, query, tenantID, studentID); err != nil {
		return nil, fmt.Errorf("list active risk cases: %w", err)
	}
	return cases, nil
}

// List returns cases matching the filter, newest first.
func (r *RiskCaseRepository) List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.TenantID}
	builder.WriteString(`SELECT ` + riskCaseColumns + ` FROM risk_cases WHERE tenant_id = $1`)

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND student_id = $%d", len(args)))
	}
	if filter.RiskType != "" {
		args = append(args, filter.RiskType)
		builder.WriteString(fmt.Sprintf(" AND risk_type = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}
	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY opened_at DESC LIMIT %d OFFSET %d", limit, offset))

	var cases []models.RiskCase
	if err := r.db.SelectContext(ctx, &cases, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list risk cases: %w", err)
	}
	return cases, nil
}

// Create inserts a new case. A duplicate active case surfaces as an error satisfying IsUniqueViolation.
func (r *RiskCaseRepository) Create(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase) error {
	if rc.ID == "" || rc.TenantID == "" || rc.StudentID == "" {
		return fmt.Errorf("id, tenant_id and student_id are required")
	}
	if rc.UpdatedAt.IsZero() {
		rc.UpdatedAt = rc.OpenedAt
	}
	const query = `INSERT INTO risk_cases
	(id, tenant_id, student_id, risk_type, severity, status, reason, opened_by, opened_at, closed_by, closed_at, notes, updated_at)
	VALUES (:id, :tenant_id, :student_id, :risk_type, :severity, :status, :reason, :opened_by, :opened_at, :closed_by, :closed_at, :notes, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, rc); err != nil {
		return fmt.Errorf("create risk case: %w", err)
	}
	return nil
}

// Update writes the mutable columns only when the stored status still equals expected.
// It returns sql.ErrNoRows when another writer moved the case first.
func (r *RiskCaseRepository) Update(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase, expected models.RiskCaseStatus) error {
	if rc.UpdatedAt.IsZero() {
		rc.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE risk_cases SET severity = :severity, status = :status, reason = :reason,
       closed_by = :closed_by, closed_at = :closed_at, notes = :notes, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id AND status = :expected_status`
	result, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, map[string]interface{}{
		"id":              rc.ID,
		"tenant_id":       rc.TenantID,
		"severity":        rc.Severity,
		"status":          rc.Status,
		"reason":          rc.Reason,
		"closed_by":       rc.ClosedBy,
		"closed_at":       rc.ClosedAt,
		"notes":           rc.Notes,
		"updated_at":      rc.UpdatedAt,
		"expected_status": expected,
	})
	if err != nil {
		return fmt.Errorf("update risk case: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check risk case update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
