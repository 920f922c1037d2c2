package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

func TestFactRepositoryAttendanceWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFactRepository(db)
	window := models.TrailingWindow(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), 30)

	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE status = 'present'\) AS present(.|\n)*FROM attendance_records`).
		WithArgs("tenant-1", "student-1", window.From, window.To).
		WillReturnRows(sqlmock.NewRows([]string{"present", "absent", "late", "excused"}).AddRow(12, 6, 2, 0))

	counts, err := repo.AttendanceWindow(context.Background(), "tenant-1", "student-1", window)
	require.NoError(t, err)
	assert.Equal(t, 20, counts.Total())
	assert.InDelta(t, 0.70, counts.Rate(), 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactRepositoryAcademicAverageWithoutScores(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFactRepository(db)

	mock.ExpectQuery(`SELECT AVG\(percentage\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	avg, err := repo.AcademicAverage(context.Background(), "tenant-1", "student-1", models.FactWindow{})
	require.NoError(t, err)
	assert.Nil(t, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactRepositoryAcademicAverage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFactRepository(db)

	mock.ExpectQuery(`SELECT AVG\(percentage\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(45.0))

	avg, err := repo.AcademicAverage(context.Background(), "tenant-1", "student-1", models.FactWindow{})
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 45.0, *avg)
}

func TestFactRepositoryOutstandingBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFactRepository(db)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectQuery(`FROM invoices\s+WHERE tenant_id = \$1 AND student_id = \$2 AND status IN \('unpaid', 'partial'\)`).
		WithArgs("tenant-1", "student-1", fixed).
		WillReturnRows(sqlmock.NewRows([]string{"outstanding_balance", "max_days_overdue"}).AddRow(1500.0, 95))

	standing, err := repo.OutstandingBalance(context.Background(), "tenant-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, standing.OutstandingBalance)
	assert.Equal(t, 95, standing.MaxDaysOverdue)
	assert.NoError(t, mock.ExpectationsWereMet())
}
