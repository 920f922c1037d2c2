package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StudentRepository reads the student roster a sweep iterates over.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ActiveStudentIDs lists active students of a tenant in a stable order.
func (r *StudentRepository) ActiveStudentIDs(ctx context.Context, tenantID string) ([]string, error) {
	const query = `SELECT id FROM students WHERE tenant_id = $1 AND active = TRUE ORDER BY id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return ids, nil
}

// Exists reports whether the student belongs to the tenant.
func (r *StudentRepository) Exists(ctx context.Context, tenantID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM students WHERE tenant_id = $1 AND id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, studentID); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}
