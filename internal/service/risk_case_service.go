package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
	"github.com/noah-isme/sma-risk-engine/pkg/keylock"
)

type riskCaseStore interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext, tenantID, studentID string, riskType models.RiskType) (*models.RiskCase, error)
	GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error)
	ListActiveByStudent(ctx context.Context, tenantID, studentID string) ([]models.RiskCase, error)
	List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, error)
	Create(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase) error
	Update(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase, expected models.RiskCaseStatus) error
}

type auditWriter interface {
	Record(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, event AuditEvent) error
}

type reconcileOutcome int

const (
	outcomeUnchanged reconcileOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeResolved
)

func (o reconcileOutcome) String() string {
	switch o {
	case outcomeCreated:
		return "created"
	case outcomeUpdated:
		return "updated"
	case outcomeResolved:
		return "resolved"
	default:
		return "unchanged"
	}
}

// DefaultRiskWindowDays is the trailing window used when none is configured.
const DefaultRiskWindowDays = 30

// RiskCaseService reconciles scorer output against stored cases and exposes
// the manual case operations. Writes for one (tenant, student, risk type) are
// serialised through the locker; the partial unique index is the backstop.
type RiskCaseService struct {
	cases         riskCaseStore
	facts         FactProvider
	audit         auditWriter
	tx            Transactor
	directory     DirectoryProvider
	notifications notificationWriter
	locker        keylock.Locker
	ids           IDAllocator
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
	windowDays    int
	now           func() time.Time
}

// RiskCaseServiceOption configures the service.
type RiskCaseServiceOption func(*RiskCaseService)

// WithRiskWindowDays overrides the trailing fact window.
func WithRiskWindowDays(days int) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithCaseOpenNotifications enables teacher notifications for new high and critical cases.
func WithCaseOpenNotifications(directory DirectoryProvider, notifications notificationWriter) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		s.directory = directory
		s.notifications = notifications
	}
}

// WithRiskCaseLocker overrides the per-key locker.
func WithRiskCaseLocker(locker keylock.Locker) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithRiskCaseIDs overrides id allocation.
func WithRiskCaseIDs(ids IDAllocator) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithRiskCaseClock overrides the clock.
func WithRiskCaseClock(now func() time.Time) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRiskCaseMetrics attaches reconcile counters.
func WithRiskCaseMetrics(metrics *MetricsService) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		s.metrics = metrics
	}
}

// WithRiskCaseValidator shares a validator instance.
func WithRiskCaseValidator(validate *validator.Validate) RiskCaseServiceOption {
	return func(s *RiskCaseService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewRiskCaseService constructs the service with an in-process locker.
func NewRiskCaseService(cases riskCaseStore, facts FactProvider, audit auditWriter, tx Transactor, logger *zap.Logger, opts ...RiskCaseServiceOption) *RiskCaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RiskCaseService{
		cases:      cases,
		facts:      facts,
		audit:      audit,
		tx:         tx,
		locker:     keylock.NewLocal(),
		ids:        UUIDAllocator{},
		validator:  NewValidator(),
		logger:     logger,
		windowDays: DefaultRiskWindowDays,
		now:        systemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// EvaluateStudentRisk scores a student and reconciles every evaluated risk
// type, returning the cases that exist for those types afterwards. Running it
// twice on unchanged facts writes nothing the second time.
func (s *RiskCaseService) EvaluateStudentRisk(ctx context.Context, scope models.Scope, studentID string) ([]models.RiskCase, error) {
	eval, err := s.EvaluateStudent(ctx, scope, studentID)
	if err != nil {
		return nil, err
	}
	return eval.Cases, nil
}

// EvaluateStudent is EvaluateStudentRisk with per-outcome counts.
func (s *RiskCaseService) EvaluateStudent(ctx context.Context, scope models.Scope, studentID string) (*models.RiskEvaluation, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	facts, err := s.collectFacts(ctx, scope.TenantID, studentID)
	if err != nil {
		return nil, err
	}
	desired := make(map[models.RiskType]models.RiskSignal)
	for _, signal := range ScoreRisk(facts) {
		desired[signal.Type] = signal
	}

	eval := &models.RiskEvaluation{StudentID: studentID, Cases: []models.RiskCase{}}
	for _, riskType := range models.EvaluatedRiskTypes {
		var want *models.RiskSignal
		if signal, ok := desired[riskType]; ok {
			want = &signal
		}
		outcome, rc, err := s.reconcile(ctx, scope, studentID, riskType, want)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordRiskReconcile(string(riskType), outcome.String())
		switch outcome {
		case outcomeCreated:
			eval.Created++
		case outcomeUpdated:
			eval.Updated++
		case outcomeResolved:
			eval.Resolved++
		default:
			eval.Unchanged++
		}
		if rc != nil {
			eval.Cases = append(eval.Cases, *rc)
		}
	}
	return eval, nil
}

func (s *RiskCaseService) collectFacts(ctx context.Context, tenantID, studentID string) (models.StudentFacts, error) {
	now := s.now()
	window := models.TrailingWindow(now, s.windowDays)

	attendance, err := s.facts.AttendanceWindow(ctx, tenantID, studentID, window)
	if err != nil {
		return models.StudentFacts{}, appErrors.Upstream(err, "attendance facts unavailable")
	}
	recent, err := s.facts.AttendanceWindow(ctx, tenantID, studentID, models.CalendarWindow(now, RecentAbsenceDays))
	if err != nil {
		return models.StudentFacts{}, appErrors.Upstream(err, "recent attendance facts unavailable")
	}
	average, err := s.facts.AcademicAverage(ctx, tenantID, studentID, window)
	if err != nil {
		return models.StudentFacts{}, appErrors.Upstream(err, "academic facts unavailable")
	}
	standing, err := s.facts.OutstandingBalance(ctx, tenantID, studentID)
	if err != nil {
		return models.StudentFacts{}, appErrors.Upstream(err, "financial facts unavailable")
	}
	return models.StudentFacts{
		Attendance:      attendance,
		RecentAbsences:  recent.Absent,
		AcademicAverage: average,
		Financial:       standing,
	}, nil
}

// reconcile applies one desired state under the key lock. A lost race is
// retried once and then skipped: the other writer reached the target state.
func (s *RiskCaseService) reconcile(ctx context.Context, scope models.Scope, studentID string, riskType models.RiskType, want *models.RiskSignal) (reconcileOutcome, *models.RiskCase, error) {
	unlock, err := s.locker.Lock(ctx, caseLockKey(scope.TenantID, studentID, riskType))
	if err != nil {
		return outcomeUnchanged, nil, passThrough(err, "failed to acquire risk case lock")
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		outcome, rc, err := s.reconcileOnce(ctx, scope, studentID, riskType, want)
		if err == nil {
			return outcome, rc, nil
		}
		if !errors.Is(err, appErrors.ErrConcurrencyConflict) {
			return outcomeUnchanged, nil, err
		}
		lastErr = err
	}
	s.logger.Info("risk case reconcile skipped after conflict",
		zap.String("tenant_id", scope.TenantID),
		zap.String("student_id", studentID),
		zap.String("risk_type", string(riskType)),
		zap.Error(lastErr),
	)
	return outcomeUnchanged, nil, nil
}

func (s *RiskCaseService) reconcileOnce(ctx context.Context, scope models.Scope, studentID string, riskType models.RiskType, want *models.RiskSignal) (reconcileOutcome, *models.RiskCase, error) {
	outcome := outcomeUnchanged
	var result *models.RiskCase

	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.cases.FindActive(ctx, exec, scope.TenantID, studentID, riskType)
		if err != nil {
			return appErrors.Internal(err, "failed to load active risk case")
		}
		now := s.now()

		switch {
		case want != nil && current == nil:
			rc := &models.RiskCase{
				ID:        s.ids.NewID(),
				TenantID:  scope.TenantID,
				StudentID: studentID,
				RiskType:  riskType,
				Severity:  want.Severity,
				Status:    models.RiskCaseStatusOpen,
				Reason:    want.Reason,
				OpenedBy:  scope.ActorOrSystem(),
				OpenedAt:  now,
				UpdatedAt: now,
			}
			if err := s.createCase(ctx, exec, scope, rc); err != nil {
				return err
			}
			outcome, result = outcomeCreated, rc

		case want != nil:
			if want.Severity.Rank() <= current.Severity.Rank() {
				result = current
				return nil
			}
			next := *current
			next.Severity = want.Severity
			next.Reason = want.Reason
			next.UpdatedAt = now
			if err := s.writeCase(ctx, exec, scope, models.AuditActionRiskCaseSeverityUpgraded, current, &next); err != nil {
				return err
			}
			outcome, result = outcomeUpdated, &next

		case current != nil:
			next := *current
			next.Status = models.RiskCaseStatusResolved
			next.ClosedBy = nil
			next.ClosedAt = &now
			next.UpdatedAt = now
			if err := s.writeCase(ctx, exec, scope, models.AuditActionRiskCaseResolved, current, &next); err != nil {
				return err
			}
			outcome, result = outcomeResolved, &next
		}
		return nil
	})
	if err != nil {
		return outcomeUnchanged, nil, passThrough(err, "failed to reconcile risk case")
	}
	return outcome, result, nil
}

func (s *RiskCaseService) createCase(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, rc *models.RiskCase) error {
	if err := s.cases.Create(ctx, exec, rc); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "active risk case already exists")
		}
		return appErrors.Internal(err, "failed to create risk case")
	}
	if err := s.audit.Record(ctx, exec, scope, AuditEvent{
		Action:       models.AuditActionRiskCaseOpened,
		ResourceType: models.ResourceRiskCase,
		ResourceID:   rc.ID,
		After:        rc,
	}); err != nil {
		return err
	}
	return s.notifyTeachers(ctx, exec, rc)
}

func (s *RiskCaseService) writeCase(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, action string, before, after *models.RiskCase) error {
	if err := s.cases.Update(ctx, exec, after, before.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConcurrencyConflict, "risk case changed concurrently")
		}
		return appErrors.Internal(err, "failed to update risk case")
	}
	return s.audit.Record(ctx, exec, scope, AuditEvent{
		Action:       action,
		ResourceType: models.ResourceRiskCase,
		ResourceID:   after.ID,
		Before:       before,
		After:        after,
	})
}

func (s *RiskCaseService) notifyTeachers(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase) error {
	if s.directory == nil || s.notifications == nil || rc.Severity.Rank() < models.RiskSeverityHigh.Rank() {
		return nil
	}
	teachers, err := s.directory.TeachersForStudent(ctx, rc.TenantID, rc.StudentID)
	if err != nil {
		return appErrors.Upstream(err, "directory unavailable")
	}
	for _, teacherID := range dedupeIDs(teachers) {
		n := &models.Notification{
			ID:              s.ids.NewID(),
			TenantID:        rc.TenantID,
			RecipientUserID: teacherID,
			Type:            models.NotificationTypeRiskCaseOpened,
			Title:           fmt.Sprintf("%s %s risk case opened", rc.Severity, rc.RiskType),
			Body:            rc.Reason,
			EntityType:      models.ResourceRiskCase,
			EntityID:        rc.ID,
			CreatedAt:       rc.OpenedAt,
		}
		if _, err := s.notifications.InsertIfAbsent(ctx, exec, n); err != nil {
			return appErrors.Internal(err, "failed to notify teachers")
		}
	}
	return nil
}

// OpenCase opens a case by hand, typically for behaviour concerns.
func (s *RiskCaseService) OpenCase(ctx context.Context, scope models.Scope, req dto.OpenRiskCaseRequest) (*models.RiskCase, error) {
	if err := requireHuman(scope, "opening a risk case"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid risk case payload"); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, caseLockKey(scope.TenantID, req.StudentID, req.RiskType))
	if err != nil {
		return nil, passThrough(err, "failed to acquire risk case lock")
	}
	defer unlock()

	var created *models.RiskCase
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.cases.FindActive(ctx, exec, scope.TenantID, req.StudentID, req.RiskType)
		if err != nil {
			return appErrors.Internal(err, "failed to load active risk case")
		}
		if current != nil {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("student already has an active %s case", req.RiskType))
		}
		now := s.now()
		rc := &models.RiskCase{
			ID:        s.ids.NewID(),
			TenantID:  scope.TenantID,
			StudentID: req.StudentID,
			RiskType:  req.RiskType,
			Severity:  req.Severity,
			Status:    models.RiskCaseStatusOpen,
			Reason:    strings.TrimSpace(req.Reason),
			OpenedBy:  scope.ActorID,
			OpenedAt:  now,
			Notes:     trimmedPtr(req.Notes),
			UpdatedAt: now,
		}
		if err := s.createCase(ctx, exec, scope, rc); err != nil {
			if errors.Is(err, appErrors.ErrConcurrencyConflict) {
				return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("student already has an active %s case", req.RiskType))
			}
			return err
		}
		created = rc
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to open risk case")
	}
	return created, nil
}

// StartCase moves an open case to in_progress.
func (s *RiskCaseService) StartCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error) {
	if err := requireHuman(scope, "starting a risk case"); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, scope, id, models.AuditActionRiskCaseStarted, func(current *models.RiskCase) (*models.RiskCase, error) {
		if !current.Status.CanTransitionTo(models.RiskCaseStatusInProgress) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot start a %s case", current.Status))
		}
		next := *current
		next.Status = models.RiskCaseStatusInProgress
		return &next, nil
	})
}

// CloseCase closes an active case on behalf of a staff member.
func (s *RiskCaseService) CloseCase(ctx context.Context, scope models.Scope, id string, req dto.CloseRiskCaseRequest) (*models.RiskCase, error) {
	if err := requireHuman(scope, "closing a risk case"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "closing notes are required"); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, scope, id, models.AuditActionRiskCaseClosed, func(current *models.RiskCase) (*models.RiskCase, error) {
		if !current.Status.CanTransitionTo(models.RiskCaseStatusClosed) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot close a %s case", current.Status))
		}
		now := s.now()
		actor := scope.ActorID
		next := *current
		next.Status = models.RiskCaseStatusClosed
		next.ClosedBy = &actor
		next.ClosedAt = &now
		next.Notes = trimmedPtr(req.Notes)
		return &next, nil
	})
}

// OverrideSeverity sets severity explicitly. It is the only way to lower it.
func (s *RiskCaseService) OverrideSeverity(ctx context.Context, scope models.Scope, id string, req dto.OverrideSeverityRequest) (*models.RiskCase, error) {
	if err := requireHuman(scope, "overriding severity"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid severity override"); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, scope, id, models.AuditActionRiskCaseSeverityOverride, func(current *models.RiskCase) (*models.RiskCase, error) {
		if !current.Status.Active() {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot change severity of a %s case", current.Status))
		}
		if current.Severity == req.Severity {
			return nil, nil
		}
		next := *current
		next.Severity = req.Severity
		next.Notes = trimmedPtr(req.Notes)
		return &next, nil
	})
}

// mutateCase loads a case under its key lock and applies change inside one
// transaction. change returns nil to signal that nothing needs writing.
func (s *RiskCaseService) mutateCase(ctx context.Context, scope models.Scope, id, action string, change func(*models.RiskCase) (*models.RiskCase, error)) (*models.RiskCase, error) {
	existing, err := s.cases.GetByID(ctx, nil, scope.TenantID, id)
	if err != nil {
		return nil, notFoundOr(err, "risk case")
	}
	unlock, err := s.locker.Lock(ctx, caseLockKey(scope.TenantID, existing.StudentID, existing.RiskType))
	if err != nil {
		return nil, passThrough(err, "failed to acquire risk case lock")
	}
	defer unlock()

	var result *models.RiskCase
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.cases.GetByID(ctx, exec, scope.TenantID, id)
		if err != nil {
			return notFoundOr(err, "risk case")
		}
		next, err := change(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		next.UpdatedAt = s.now()
		if err := s.writeCase(ctx, exec, scope, action, current, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update risk case")
	}
	return result, nil
}

// GetCase returns one case of the tenant.
func (s *RiskCaseService) GetCase(ctx context.Context, scope models.Scope, id string) (*models.RiskCase, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	rc, err := s.cases.GetByID(ctx, nil, scope.TenantID, id)
	if err != nil {
		return nil, notFoundOr(err, "risk case")
	}
	return rc, nil
}

// ListCases returns the tenant's cases matching query.
func (s *RiskCaseService) ListCases(ctx context.Context, scope models.Scope, query dto.RiskCaseQuery) ([]models.RiskCase, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	if query.RiskType != "" && !query.RiskType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown risk type")
	}
	cases, err := s.cases.List(ctx, models.RiskCaseFilter{
		TenantID:  scope.TenantID,
		StudentID: query.StudentID,
		RiskType:  query.RiskType,
		Statuses:  query.Statuses,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list risk cases")
	}
	return cases, nil
}

// ActiveCases returns a student's open and in-progress cases.
func (s *RiskCaseService) ActiveCases(ctx context.Context, scope models.Scope, studentID string) ([]models.RiskCase, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	cases, err := s.cases.ListActiveByStudent(ctx, scope.TenantID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list active risk cases")
	}
	return cases, nil
}

func caseLockKey(tenantID, studentID string, riskType models.RiskType) string {
	return fmt.Sprintf("risk:%s:%s:%s", tenantID, studentID, riskType)
}

// dedupeIDs drops blanks and duplicates while keeping first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
