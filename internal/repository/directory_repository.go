package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository resolves teaching assignments into teacher user ids.
// Results are distinct and ordered so callers observe a stable recipient set.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// TeachersForClass returns teachers assigned to a class.
func (r *DirectoryRepository) TeachersForClass(ctx context.Context, tenantID, classID string) ([]string, error) {
	const query = `
SELECT DISTINCT t.user_id
FROM teacher_assignments ta
JOIN teachers t ON t.id = ta.teacher_id AND t.tenant_id = ta.tenant_id
WHERE ta.tenant_id = $1 AND ta.class_id = $2 AND t.active = TRUE
ORDER BY t.user_id`
	return r.selectIDs(ctx, "teachers for class", query, tenantID, classID)
}

// TeachersForGrade returns teachers assigned to any class in a grade.
func (r *DirectoryRepository) TeachersForGrade(ctx context.Context, tenantID, grade string) ([]string, error) {
	const query = `
SELECT DISTINCT t.user_id
FROM teacher_assignments ta
JOIN classes c ON c.id = ta.class_id AND c.tenant_id = ta.tenant_id
JOIN teachers t ON t.id = ta.teacher_id AND t.tenant_id = ta.tenant_id
WHERE ta.tenant_id = $1 AND c.grade = $2 AND t.active = TRUE
ORDER BY t.user_id`
	return r.selectIDs(ctx, "teachers for grade", query, tenantID, grade)
}

// TeachersForSubject returns teachers assigned to a subject in any class.
func (r *DirectoryRepository) TeachersForSubject(ctx context.Context, tenantID, subjectID string) ([]string, error) {
	const query = `
SELECT DISTINCT t.user_id
FROM teacher_assignments ta
JOIN teachers t ON t.id = ta.teacher_id AND t.tenant_id = ta.tenant_id
WHERE ta.tenant_id = $1 AND ta.subject_id = $2 AND t.active = TRUE
ORDER BY t.user_id`
	return r.selectIDs(ctx, "teachers for subject", query, tenantID, subjectID)
}

// TeachersForStudent returns teachers of the classes a student is actively enrolled in.
func (r *DirectoryRepository) TeachersForStudent(ctx context.Context, tenantID, studentID string) ([]string, error) {
	const query = `
SELECT DISTINCT t.user_id
FROM enrollments e
JOIN teacher_assignments ta ON ta.class_id = e.class_id AND ta.tenant_id = e.tenant_id
JOIN teachers t ON t.id = ta.teacher_id AND t.tenant_id = ta.tenant_id
WHERE e.tenant_id = $1 AND e.student_id = $2 AND e.status = 'active' AND t.active = TRUE
ORDER BY t.user_id`
	return r.selectIDs(ctx, "teachers for student", query, tenantID, studentID)
}

func (r *DirectoryRepository) selectIDs(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
