package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

// Transactor runs fn inside a single database transaction. fn receives the
// executor every repository call in the unit of work must use.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

// IDAllocator hands out identifiers for new entities.
type IDAllocator interface {
	NewID() string
}

// UUIDAllocator allocates random UUIDs.
type UUIDAllocator struct{}

// NewID implements IDAllocator.
func (UUIDAllocator) NewID() string {
	return uuid.NewString()
}

// IDAllocatorFunc adapts a plain function.
type IDAllocatorFunc func() string

// NewID implements IDAllocator.
func (f IDAllocatorFunc) NewID() string {
	return f()
}

// FactProvider answers read-only queries about a student's records.
type FactProvider interface {
	AttendanceWindow(ctx context.Context, tenantID, studentID string, window models.FactWindow) (models.AttendanceCounts, error)
	AcademicAverage(ctx context.Context, tenantID, studentID string, window models.FactWindow) (*float64, error)
	OutstandingBalance(ctx context.Context, tenantID, studentID string) (models.FinancialStanding, error)
}

// DirectoryProvider resolves teaching assignments into teacher user ids.
type DirectoryProvider interface {
	TeachersForClass(ctx context.Context, tenantID, classID string) ([]string, error)
	TeachersForGrade(ctx context.Context, tenantID, grade string) ([]string, error)
	TeachersForSubject(ctx context.Context, tenantID, subjectID string) ([]string, error)
	TeachersForStudent(ctx context.Context, tenantID, studentID string) ([]string, error)
}

type notificationWriter interface {
	InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) (bool, error)
}

func requireTenant(scope models.Scope) error {
	if strings.TrimSpace(scope.TenantID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "tenant_id is required")
	}
	return nil
}

func requireHuman(scope models.Scope, action string) error {
	if err := requireTenant(scope); err != nil {
		return err
	}
	if scope.IsSystem() {
		return appErrors.Clone(appErrors.ErrValidation, action+" requires a human actor")
	}
	return nil
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Internal(err, "failed to load "+what)
}

// passThrough keeps typed errors raised inside a transaction intact.
func passThrough(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return appErrors.Internal(err, message)
}

func trimmedPtr(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func systemClock() time.Time {
	return time.Now().UTC()
}
