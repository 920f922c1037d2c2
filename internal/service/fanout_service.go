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
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

type markingStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, mr *models.MarkingRequest) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.MarkingRequest, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, expected, next models.MarkingStatus, at time.Time) error
}

type notificationStore interface {
	notificationWriter
	ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Notification, error)
	MarkRead(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, at time.Time) error
}

// fanoutSummary is the audit payload of a re-fanout.
type fanoutSummary struct {
	MarkingRequestID string `json:"marking_request_id"`
	Recipients       int    `json:"recipients"`
	Inserted         int    `json:"inserted"`
}

// FanoutService turns marking requests into one notification per resolved
// teacher. Inserts are idempotent per (source, recipient), so fan-out can be
// repeated or run concurrently without duplicating rows.
type FanoutService struct {
	markings      markingStore
	notifications notificationStore
	directory     DirectoryProvider
	audit         auditWriter
	tx            Transactor
	ids           IDAllocator
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// FanoutServiceOption configures the service.
type FanoutServiceOption func(*FanoutService)

// WithFanoutIDs overrides id allocation.
func WithFanoutIDs(ids IDAllocator) FanoutServiceOption {
	return func(s *FanoutService) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithFanoutClock overrides the clock.
func WithFanoutClock(now func() time.Time) FanoutServiceOption {
	return func(s *FanoutService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFanoutMetrics attaches delivery counters.
func WithFanoutMetrics(metrics *MetricsService) FanoutServiceOption {
	return func(s *FanoutService) {
		s.metrics = metrics
	}
}

// WithFanoutValidator shares a validator instance.
func WithFanoutValidator(validate *validator.Validate) FanoutServiceOption {
	return func(s *FanoutService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewFanoutService constructs the service.
func NewFanoutService(markings markingStore, notifications notificationStore, directory DirectoryProvider, audit auditWriter, tx Transactor, logger *zap.Logger, opts ...FanoutServiceOption) *FanoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &FanoutService{
		markings:      markings,
		notifications: notifications,
		directory:     directory,
		audit:         audit,
		tx:            tx,
		ids:           UUIDAllocator{},
		validator:     NewValidator(),
		logger:        logger,
		now:           systemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateMarkingRequest stores the request and fans it out in one transaction.
// An empty recipient set is not an error.
func (s *FanoutService) CreateMarkingRequest(ctx context.Context, scope models.Scope, req dto.CreateMarkingRequest) (*models.FanoutResult, error) {
	if err := requireHuman(scope, "creating a marking request"); err != nil {
		return nil, err
	}
	if !req.TargetScope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown scope type %q", req.TargetScope))
	}
	if err := validatePayload(s.validator, req, "invalid marking request payload"); err != nil {
		return nil, err
	}

	recipients, err := s.ResolveRecipients(ctx, scope.TenantID, req.TargetScope, req.ScopeReferenceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	mr := &models.MarkingRequest{
		ID:               s.ids.NewID(),
		TenantID:         scope.TenantID,
		TargetScope:      req.TargetScope,
		ScopeReferenceID: strings.TrimSpace(req.ScopeReferenceID),
		Message:          strings.TrimSpace(req.Message),
		DueAt:            req.DueAt,
		Status:           models.MarkingStatusOpen,
		CreatedBy:        scope.ActorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	result := &models.FanoutResult{Request: mr, Recipients: len(recipients)}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.markings.Create(ctx, exec, mr); err != nil {
			return appErrors.Internal(err, "failed to create marking request")
		}
		inserted, err := s.deliver(ctx, exec, mr, recipients)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		return s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionMarkingRequestCreated,
			ResourceType: models.ResourceMarkingRequest,
			ResourceID:   mr.ID,
			After:        mr,
		})
	})
	if err != nil {
		return nil, passThrough(err, "failed to create marking request")
	}
	s.metrics.RecordFanout(string(mr.TargetScope), result.Recipients, result.Inserted)
	return result, nil
}

// Refanout re-resolves the audience of an active request and delivers to
// recipients who do not have a notification yet.
func (s *FanoutService) Refanout(ctx context.Context, scope models.Scope, id string) (*models.FanoutResult, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	mr, err := s.markings.GetByID(ctx, nil, scope.TenantID, id)
	if err != nil {
		return nil, notFoundOr(err, "marking request")
	}
	if mr.Status == models.MarkingStatusCompleted || mr.Status == models.MarkingStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("marking request is %s", mr.Status))
	}
	recipients, err := s.ResolveRecipients(ctx, scope.TenantID, mr.TargetScope, mr.ScopeReferenceID)
	if err != nil {
		return nil, err
	}

	result := &models.FanoutResult{Request: mr, Recipients: len(recipients)}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		inserted, err := s.deliver(ctx, exec, mr, recipients)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		if inserted == 0 {
			return nil
		}
		return s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionMarkingRequestFanout,
			ResourceType: models.ResourceMarkingRequest,
			ResourceID:   mr.ID,
			After:        fanoutSummary{MarkingRequestID: mr.ID, Recipients: len(recipients), Inserted: inserted},
		})
	})
	if err != nil {
		return nil, passThrough(err, "failed to fan out marking request")
	}
	s.metrics.RecordFanout(string(mr.TargetScope), result.Recipients, result.Inserted)
	return result, nil
}

// ResolveRecipients maps a target scope onto distinct teacher user ids.
func (s *FanoutService) ResolveRecipients(ctx context.Context, tenantID string, target models.MarkingScope, ref string) ([]string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope_reference_id is required")
	}
	var (
		ids []string
		err error
	)
	switch target {
	case models.MarkingScopeTeacher:
		ids = []string{ref}
	case models.MarkingScopeClass:
		ids, err = s.directory.TeachersForClass(ctx, tenantID, ref)
	case models.MarkingScopeGrade:
		ids, err = s.directory.TeachersForGrade(ctx, tenantID, ref)
	case models.MarkingScopeSubject:
		ids, err = s.directory.TeachersForSubject(ctx, tenantID, ref)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown scope type %q", target))
	}
	if err != nil {
		return nil, appErrors.Upstream(err, "directory unavailable")
	}
	return dedupeIDs(ids), nil
}

func (s *FanoutService) deliver(ctx context.Context, exec sqlx.ExtContext, mr *models.MarkingRequest, recipients []string) (int, error) {
	inserted := 0
	for _, recipient := range recipients {
		n := &models.Notification{
			ID:              s.ids.NewID(),
			TenantID:        mr.TenantID,
			RecipientUserID: recipient,
			Type:            models.NotificationTypeMarkingRequest,
			Title:           "Marking request",
			Body:            mr.Message,
			EntityType:      models.ResourceMarkingRequest,
			EntityID:        mr.ID,
			CreatedAt:       s.now(),
		}
		ok, err := s.notifications.InsertIfAbsent(ctx, exec, n)
		if err != nil {
			return 0, appErrors.Internal(err, "failed to insert notification")
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// UpdateMarkingStatus moves a marking request along open, acknowledged, completed or cancelled.
func (s *FanoutService) UpdateMarkingStatus(ctx context.Context, scope models.Scope, id string, req dto.UpdateMarkingStatusRequest) (*models.MarkingRequest, error) {
	if err := requireHuman(scope, "updating a marking request"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid marking status"); err != nil {
		return nil, err
	}

	var result *models.MarkingRequest
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.markings.GetByID(ctx, exec, scope.TenantID, id)
		if err != nil {
			return notFoundOr(err, "marking request")
		}
		if !current.Status.CanTransitionTo(req.Status) {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot move marking request from %s to %s", current.Status, req.Status))
		}
		now := s.now()
		if err := s.markings.UpdateStatus(ctx, exec, scope.TenantID, id, current.Status, req.Status, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConcurrencyConflict, "marking request changed concurrently")
			}
			return appErrors.Internal(err, "failed to update marking request")
		}
		next := *current
		next.Status = req.Status
		next.UpdatedAt = now
		if err := s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionMarkingRequestStatus,
			ResourceType: models.ResourceMarkingRequest,
			ResourceID:   id,
			Before:       current,
			After:        &next,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update marking request")
	}
	return result, nil
}

// GetMarkingRequest returns one marking request.
func (s *FanoutService) GetMarkingRequest(ctx context.Context, scope models.Scope, id string) (*models.MarkingRequest, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	mr, err := s.markings.GetByID(ctx, nil, scope.TenantID, id)
	if err != nil {
		return nil, notFoundOr(err, "marking request")
	}
	return mr, nil
}

// ListNotifications returns the caller's inbox.
func (s *FanoutService) ListNotifications(ctx context.Context, scope models.Scope, query dto.NotificationQuery) ([]models.Notification, error) {
	if err := requireHuman(scope, "reading notifications"); err != nil {
		return nil, err
	}
	list, err := s.notifications.ListByRecipient(ctx, models.NotificationFilter{
		TenantID:        scope.TenantID,
		RecipientUserID: scope.ActorID,
		UnreadOnly:      query.UnreadOnly,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list notifications")
	}
	return list, nil
}

// MarkNotificationRead stamps read_at on one of the caller's notifications.
// Marking an already read notification is a no-op.
func (s *FanoutService) MarkNotificationRead(ctx context.Context, scope models.Scope, id string) (*models.Notification, error) {
	if err := requireHuman(scope, "reading notifications"); err != nil {
		return nil, err
	}

	var result *models.Notification
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.notifications.GetByID(ctx, exec, scope.TenantID, id)
		if err != nil {
			return notFoundOr(err, "notification")
		}
		if current.RecipientUserID != scope.ActorID {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		if current.ReadAt != nil {
			result = current
			return nil
		}
		now := s.now()
		if err := s.notifications.MarkRead(ctx, exec, scope.TenantID, id, now); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return appErrors.Internal(err, "failed to mark notification read")
			}
			reloaded, err := s.notifications.GetByID(ctx, exec, scope.TenantID, id)
			if err != nil {
				return notFoundOr(err, "notification")
			}
			result = reloaded
			return nil
		}
		next := *current
		next.ReadAt = &now
		if err := s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionNotificationRead,
			ResourceType: models.ResourceNotification,
			ResourceID:   id,
			Before:       current,
			After:        &next,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to mark notification read")
	}
	return result, nil
}
