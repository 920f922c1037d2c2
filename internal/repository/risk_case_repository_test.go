package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var riskCaseRowColumns = []string{"id", "tenant_id", "student_id", "risk_type", "severity", "status", "reason", "opened_by", "opened_at", "closed_by", "closed_at", "notes", "updated_at"}

func TestRiskCaseRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRiskCaseRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM risk_cases\s+WHERE tenant_id = \$1 AND student_id = \$2 AND risk_type = \$3 AND status IN \('open', 'in_progress'\)\s+FOR UPDATE`).
		WithArgs("tenant-1", "student-1", models.RiskTypeAttendance).
		WillReturnRows(sqlmock.NewRows(riskCaseRowColumns).
			AddRow("case-1", "tenant-1", "student-1", "attendance", "medium", "open", "attendance rate 70%", "system", now, nil, nil, nil, now))

	rc, err := repo.FindActive(context.Background(), nil, "tenant-1", "student-1", models.RiskTypeAttendance)
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, models.RiskSeverityMedium, rc.Severity)
	assert.Nil(t, rc.ClosedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskCaseRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRiskCaseRepository(db)

	mock.ExpectQuery("FROM risk_cases").
		WillReturnRows(sqlmock.NewRows(riskCaseRowColumns))

	rc, err := repo.FindActive(context.Background(), nil, "tenant-1", "student-1", models.RiskTypeAcademic)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskCaseRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRiskCaseRepository(db)

	mock.ExpectExec("INSERT INTO risk_cases").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "risk_cases_one_active_idx"})

	err := repo.Create(context.Background(), nil, &models.RiskCase{
		ID: "case-1", TenantID: "tenant-1", StudentID: "student-1",
		RiskType: models.RiskTypeAttendance, Severity: models.RiskSeverityMedium,
		Status: models.RiskCaseStatusOpen, OpenedBy: models.SystemActor, OpenedAt: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskCaseRepositoryCreateRequiresKeys(t *testing.T) {
	repo := NewRiskCaseRepository(nil)
	err := repo.Create(context.Background(), nil, &models.RiskCase{ID: "case-1"})
	require.Error(t, err)
}

func TestRiskCaseRepositoryUpdateLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRiskCaseRepository(db)

	mock.ExpectExec(`UPDATE risk_cases SET severity`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), nil, &models.RiskCase{
		ID: "case-1", TenantID: "tenant-1", Severity: models.RiskSeverityHigh, Status: models.RiskCaseStatusOpen,
	}, models.RiskCaseStatusOpen)
	require.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskCaseRepositoryListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRiskCaseRepository(db)

	mock.ExpectQuery(`FROM risk_cases WHERE tenant_id = \$1 AND student_id = \$2 AND status IN \(\$3,\$4\) ORDER BY opened_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("tenant-1", "student-1", models.RiskCaseStatusOpen, models.RiskCaseStatusInProgress).
		WillReturnRows(sqlmock.NewRows(riskCaseRowColumns))

	cases, err := repo.List(context.Background(), models.RiskCaseFilter{
		TenantID:  "tenant-1",
		StudentID: "student-1",
		Statuses:  models.ActiveRiskCaseStatuses,
	})
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
