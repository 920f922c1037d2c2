package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// FactRepository answers the read-only attendance, assessment and invoice
// queries the risk scorer consumes. Every query is scoped by tenant and student.
type FactRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewFactRepository constructs the repository.
func NewFactRepository(db *sqlx.DB) *FactRepository {
	return &FactRepository{db: db, now: time.Now}
}

// AttendanceWindow counts attendance outcomes recorded inside window.
func (r *FactRepository) AttendanceWindow(ctx context.Context, tenantID, studentID string, window models.FactWindow) (models.AttendanceCounts, error) {
	const query = `
SELECT COUNT(*) FILTER (WHERE status = 'present') AS present,
       COUNT(*) FILTER (WHERE status = 'absent') AS absent,
       COUNT(*) FILTER (WHERE status = 'late') AS late,
       COUNT(*) FILTER (WHERE status = 'excused') AS excused
FROM attendance_records
WHERE tenant_id = $1 AND student_id = $2 AND recorded_at >= $3 AND recorded_at < $4`
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, tenantID, studentID, window.From, window.To); err != nil {
		return models.AttendanceCounts{}, fmt.Errorf("attendance window: %w", err)
	}
	return counts, nil
}

// AcademicAverage returns the mean percentage of scored assessments inside
// window, or nil when the student has no scores there.
func (r *FactRepository) AcademicAverage(ctx context.Context, tenantID, studentID string, window models.FactWindow) (*float64, error) {
	const query = `
SELECT AVG(percentage)
FROM assessment_scores
WHERE tenant_id = $1 AND student_id = $2 AND percentage IS NOT NULL AND assessed_at >= $3 AND assessed_at < $4`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, tenantID, studentID, window.From, window.To); err != nil {
		return nil, fmt.Errorf("academic average: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	value := avg.Float64
	return &value, nil
}

// OutstandingBalance sums what is still owed on unpaid or partial invoices and
// reports how many days the oldest of them is overdue.
func (r *FactRepository) OutstandingBalance(ctx context.Context, tenantID, studentID string) (models.FinancialStanding, error) {
	const query = `
SELECT COALESCE(SUM(amount - amount_paid), 0) AS outstanding_balance,
       COALESCE(MAX(GREATEST(DATE_PART('day', $3::timestamptz - due_date), 0)), 0)::int AS max_days_overdue
FROM invoices
WHERE tenant_id = $1 AND student_id = $2 AND status IN ('unpaid', 'partial')`
	var standing models.FinancialStanding
	if err := r.db.GetContext(ctx, &standing, query, tenantID, studentID, r.now().UTC()); err != nil {
		return models.FinancialStanding{}, fmt.Errorf("outstanding balance: %w", err)
	}
	return standing, nil
}
