package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

const interventionColumns = `id, tenant_id, risk_case_id, type, assigned_to, due_date, status, notes,
       created_by, created_at, completed_at, updated_at`

// InterventionRepository persists remediation tasks. Rows cascade only when
// the owning risk case is hard-deleted.
type InterventionRepository struct {
	db *sqlx.DB
}

// NewInterventionRepository constructs the repository.
func NewInterventionRepository(db *sqlx.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

// Create inserts an intervention.
func (r *InterventionRepository) Create(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention) error {
	const query = `INSERT INTO interventions
	(id, tenant_id, risk_case_id, type, assigned_to, due_date, status, notes, created_by, created_at, completed_at, updated_at)
	VALUES (:id, :tenant_id, :risk_case_id, :type, :assigned_to, :due_date, :status, :notes, :created_by, :created_at, :completed_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, iv); err != nil {
		return fmt.Errorf("create intervention: %w", err)
	}
	return nil
}

// GetByID fetches an intervention scoped to the tenant.
func (r *InterventionRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE tenant_id = $1 AND id = $2`
	var iv models.Intervention
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &iv, query, tenantID, id); err != nil {
		return nil, err
	}
	return &iv, nil
}

// ListByCase returns the interventions of a case, oldest first.
func (r *InterventionRepository) ListByCase(ctx context.Context, tenantID, riskCaseID string) ([]models.Intervention, error) {
	query := `SELECT ` + interventionColumns + `
FROM interventions WHERE tenant_id = $1 AND risk_case_id = $2 ORDER BY created_at ASC`
	var list []models.Intervention
	if err := r.db.SelectContext(ctx, &list, query, tenantID, riskCaseID); err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	return list, nil
}

// UpdateStatus persists a transition when the stored status still equals expected.
func (r *InterventionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention, expected models.InterventionStatus) error {
	const query = `UPDATE interventions SET status = :status, notes = :notes, completed_at = :completed_at, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id AND status = :expected_status`
	result, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, map[string]interface{}{
		"id":              iv.ID,
		"tenant_id":       iv.TenantID,
		"status":          iv.Status,
		"notes":           iv.Notes,
		"completed_at":    iv.CompletedAt,
		"updated_at":      iv.UpdatedAt,
		"expected_status": expected,
	})
	if err != nil {
		return fmt.Errorf("update intervention: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check intervention update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
