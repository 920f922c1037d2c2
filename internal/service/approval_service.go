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
)

type approvalStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.ApprovalRequest) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	ApplyDecision(ctx context.Context, exec sqlx.ExtContext, params repository.ApplyDecisionParams) error
	ReturnToPending(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, expectedVersion int) error
	InsertDecisionRecord(ctx context.Context, exec sqlx.ExtContext, rec *models.ApprovalDecisionRecord) error
	ListDecisions(ctx context.Context, tenantID, requestID string) ([]models.ApprovalDecisionRecord, error)
}

// ApprovalService runs the decision state machine for governed actions.
// Decisions are applied with a version and status predicate so exactly one of
// two simultaneous attempts succeeds.
type ApprovalService struct {
	approvals     approvalStore
	notifications notificationWriter
	audit         auditWriter
	tx            Transactor
	ids           IDAllocator
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalIDs overrides id allocation.
func WithApprovalIDs(ids IDAllocator) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithApprovalClock overrides the clock.
func WithApprovalClock(now func() time.Time) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithApprovalMetrics attaches decision counters.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithApprovalValidator shares a validator instance.
func WithApprovalValidator(validate *validator.Validate) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(approvals approvalStore, notifications notificationWriter, audit auditWriter, tx Transactor, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		approvals:     approvals,
		notifications: notifications,
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

// Submit opens a pending request for the caller.
func (s *ApprovalService) Submit(ctx context.Context, scope models.Scope, req dto.SubmitApprovalRequest) (*models.ApprovalRequest, error) {
	if err := requireHuman(scope, "submitting an approval request"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid approval payload"); err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = models.ApprovalPriorityMedium
	}

	request := &models.ApprovalRequest{
		ID:          s.ids.NewID(),
		TenantID:    scope.TenantID,
		Type:        req.Type,
		EntityType:  strings.TrimSpace(req.EntityType),
		EntityID:    strings.TrimSpace(req.EntityID),
		RequestedBy: scope.ActorID,
		SubmittedAt: s.now(),
		Priority:    priority,
		Status:      models.ApprovalStatusPending,
		Version:     1,
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.approvals.Create(ctx, exec, request); err != nil {
			return appErrors.Internal(err, "failed to create approval request")
		}
		return s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionApprovalSubmitted,
			ResourceType: models.ResourceApprovalRequest,
			ResourceID:   request.ID,
			After:        request,
		})
	})
	if err != nil {
		return nil, passThrough(err, "failed to submit approval request")
	}
	return request, nil
}

// SubmitApprovalDecision records a reviewer's decision on a pending request.
// A request that already left pending yields ALREADY_DECIDED and is left untouched.
func (s *ApprovalService) SubmitApprovalDecision(ctx context.Context, scope models.Scope, requestID string, decision models.ApprovalDecision, decidedBy, notes string) (*models.ApprovalRequest, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	decidedBy = strings.TrimSpace(decidedBy)
	notes = strings.TrimSpace(notes)
	if decidedBy == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decided_by is required")
	}
	if notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision notes are required")
	}
	target, ok := decision.TargetStatus()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown decision %q", decision))
	}

	var result *models.ApprovalRequest
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.approvals.GetByID(ctx, exec, scope.TenantID, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if current.Status != models.ApprovalStatusPending {
			return appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("approval request is %s", current.Status))
		}

		now := s.now()
		if err := s.approvals.ApplyDecision(ctx, exec, repository.ApplyDecisionParams{
			ID:              current.ID,
			TenantID:        current.TenantID,
			ExpectedVersion: current.Version,
			Status:          target,
			Decision:        decision,
			DecidedBy:       decidedBy,
			DecidedAt:       now,
			Notes:           notes,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrAlreadyDecided, "approval request was decided concurrently")
			}
			return appErrors.Internal(err, "failed to apply decision")
		}

		next := *current
		next.Status = target
		next.Decision = &decision
		next.DecidedBy = &decidedBy
		next.DecidedAt = &now
		next.Notes = &notes
		next.Version = current.Version + 1

		if err := s.approvals.InsertDecisionRecord(ctx, exec, &models.ApprovalDecisionRecord{
			ID:                s.ids.NewID(),
			TenantID:          next.TenantID,
			ApprovalRequestID: next.ID,
			Decision:          decision,
			Status:            target,
			DecidedBy:         decidedBy,
			DecidedAt:         now,
			Notes:             notes,
		}); err != nil {
			return appErrors.Internal(err, "failed to record decision history")
		}
		if target.Terminal() {
			if err := s.notifyRequester(ctx, exec, &next); err != nil {
				return err
			}
		}
		if err := s.audit.Record(ctx, exec, scope.WithActor(decidedBy), AuditEvent{
			Action:       models.AuditActionApprovalDecided,
			ResourceType: models.ResourceApprovalRequest,
			ResourceID:   next.ID,
			Before:       current,
			After:        &next,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrAlreadyDecided) {
			s.metrics.RecordApprovalDecision(string(decision), "already_decided")
		}
		return nil, passThrough(err, "failed to decide approval request")
	}
	s.metrics.RecordApprovalDecision(string(decision), "applied")
	return result, nil
}

// Decide applies a decision taken by the caller.
func (s *ApprovalService) Decide(ctx context.Context, scope models.Scope, requestID string, req dto.ApprovalDecisionRequest) (*models.ApprovalRequest, error) {
	if err := requireHuman(scope, "deciding an approval request"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid decision payload"); err != nil {
		return nil, err
	}
	return s.SubmitApprovalDecision(ctx, scope, requestID, req.Decision, scope.ActorID, req.Notes)
}

// Resubmit returns a more_info or escalated request to pending. The interim
// decision stays in the decision history; the live decision fields are cleared.
func (s *ApprovalService) Resubmit(ctx context.Context, scope models.Scope, requestID string) (*models.ApprovalRequest, error) {
	if err := requireHuman(scope, "resubmitting an approval request"); err != nil {
		return nil, err
	}

	var result *models.ApprovalRequest
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.approvals.GetByID(ctx, exec, scope.TenantID, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if !current.Status.Resubmittable() {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot resubmit a %s request", current.Status))
		}
		if err := s.approvals.ReturnToPending(ctx, exec, scope.TenantID, current.ID, current.Version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConcurrencyConflict, "approval request changed concurrently")
			}
			return appErrors.Internal(err, "failed to resubmit approval request")
		}
		next := *current
		next.Status = models.ApprovalStatusPending
		next.Decision = nil
		next.DecidedBy = nil
		next.DecidedAt = nil
		next.Notes = nil
		next.Version = current.Version + 1
		if err := s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionApprovalResubmitted,
			ResourceType: models.ResourceApprovalRequest,
			ResourceID:   next.ID,
			Before:       current,
			After:        &next,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to resubmit approval request")
	}
	return result, nil
}

func (s *ApprovalService) notifyRequester(ctx context.Context, exec sqlx.ExtContext, req *models.ApprovalRequest) error {
	if s.notifications == nil {
		return nil
	}
	n := &models.Notification{
		ID:              s.ids.NewID(),
		TenantID:        req.TenantID,
		RecipientUserID: req.RequestedBy,
		Type:            models.NotificationTypeApprovalDecision,
		Title:           fmt.Sprintf("%s request %s", strings.ReplaceAll(string(req.Type), "_", " "), req.Status),
		Body:            *req.Notes,
		EntityType:      models.ResourceApprovalRequest,
		EntityID:        req.ID,
		CreatedAt:       *req.DecidedAt,
	}
	if _, err := s.notifications.InsertIfAbsent(ctx, exec, n); err != nil {
		return appErrors.Internal(err, "failed to notify requester")
	}
	return nil
}

// Get returns one request.
func (s *ApprovalService) Get(ctx context.Context, scope models.Scope, id string) (*models.ApprovalRequest, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	req, err := s.approvals.GetByID(ctx, nil, scope.TenantID, id)
	if err != nil {
		return nil, notFoundOr(err, "approval request")
	}
	return req, nil
}

// List returns requests ordered for reviewers by priority, then submission time.
func (s *ApprovalService) List(ctx context.Context, scope models.Scope, query dto.ApprovalQuery) ([]models.ApprovalRequest, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	list, err := s.approvals.List(ctx, models.ApprovalFilter{
		TenantID:    scope.TenantID,
		Statuses:    query.Statuses,
		Type:        query.Type,
		RequestedBy: query.RequestedBy,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list approval requests")
	}
	return list, nil
}

// Decisions returns the decision history of a request.
func (s *ApprovalService) Decisions(ctx context.Context, scope models.Scope, id string) ([]models.ApprovalDecisionRecord, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	records, err := s.approvals.ListDecisions(ctx, scope.TenantID, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list decisions")
	}
	return records, nil
}
