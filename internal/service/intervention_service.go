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

type interventionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Intervention, error)
	ListByCase(ctx context.Context, tenantID, riskCaseID string) ([]models.Intervention, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, iv *models.Intervention, expected models.InterventionStatus) error
}

type caseGuard interface {
	GetForShare(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error)
}

var interventionActions = map[models.InterventionStatus]string{
	models.InterventionStatusInProgress: models.AuditActionInterventionStarted,
	models.InterventionStatusCompleted:  models.AuditActionInterventionCompleted,
	models.InterventionStatusCancelled:  models.AuditActionInterventionCancelled,
}

// InterventionService manages remediation tasks. The owning case row is share
// locked while an intervention is written so the case cannot close underneath it.
type InterventionService struct {
	interventions interventionStore
	cases         caseGuard
	audit         auditWriter
	tx            Transactor
	ids           IDAllocator
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewInterventionService constructs the service.
func NewInterventionService(interventions interventionStore, cases caseGuard, audit auditWriter, tx Transactor, ids IDAllocator, validate *validator.Validate, logger *zap.Logger) *InterventionService {
	if ids == nil {
		ids = UUIDAllocator{}
	}
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionService{
		interventions: interventions,
		cases:         cases,
		audit:         audit,
		tx:            tx,
		ids:           ids,
		validator:     validate,
		logger:        logger,
		now:           systemClock,
	}
}

// Create attaches a pending intervention to an active case.
func (s *InterventionService) Create(ctx context.Context, scope models.Scope, riskCaseID string, req dto.CreateInterventionRequest) (*models.Intervention, error) {
	if err := requireHuman(scope, "creating an intervention"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid intervention payload"); err != nil {
		return nil, err
	}

	var created *models.Intervention
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		rc, err := s.cases.GetForShare(ctx, exec, scope.TenantID, riskCaseID)
		if err != nil {
			return notFoundOr(err, "risk case")
		}
		if rc.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot add an intervention to a %s case", rc.Status))
		}
		now := s.now()
		iv := &models.Intervention{
			ID:         s.ids.NewID(),
			TenantID:   scope.TenantID,
			RiskCaseID: rc.ID,
			Type:       strings.TrimSpace(req.Type),
			AssignedTo: strings.TrimSpace(req.AssignedTo),
			DueDate:    req.DueDate,
			Status:     models.InterventionStatusPending,
			Notes:      trimmedPtr(req.Notes),
			CreatedBy:  scope.ActorID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.interventions.Create(ctx, exec, iv); err != nil {
			return appErrors.Internal(err, "failed to create intervention")
		}
		if err := s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       models.AuditActionInterventionCreated,
			ResourceType: models.ResourceIntervention,
			ResourceID:   iv.ID,
			After:        iv,
		}); err != nil {
			return err
		}
		created = iv
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to create intervention")
	}
	return created, nil
}

// Start moves an intervention to in_progress.
func (s *InterventionService) Start(ctx context.Context, scope models.Scope, id, notes string) (*models.Intervention, error) {
	return s.Transition(ctx, scope, id, dto.InterventionTransitionRequest{Status: models.InterventionStatusInProgress, Notes: notes})
}

// Complete marks an intervention done. The owning case stays open.
func (s *InterventionService) Complete(ctx context.Context, scope models.Scope, id, notes string) (*models.Intervention, error) {
	return s.Transition(ctx, scope, id, dto.InterventionTransitionRequest{Status: models.InterventionStatusCompleted, Notes: notes})
}

// Cancel abandons an intervention. It is allowed even when the case is already terminal.
func (s *InterventionService) Cancel(ctx context.Context, scope models.Scope, id, notes string) (*models.Intervention, error) {
	return s.Transition(ctx, scope, id, dto.InterventionTransitionRequest{Status: models.InterventionStatusCancelled, Notes: notes})
}

// Transition applies req.Status to an intervention.
func (s *InterventionService) Transition(ctx context.Context, scope models.Scope, id string, req dto.InterventionTransitionRequest) (*models.Intervention, error) {
	if err := requireHuman(scope, "updating an intervention"); err != nil {
		return nil, err
	}
	if err := validatePayload(s.validator, req, "invalid intervention transition"); err != nil {
		return nil, err
	}

	var result *models.Intervention
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.interventions.GetByID(ctx, exec, scope.TenantID, id)
		if err != nil {
			return notFoundOr(err, "intervention")
		}
		if !current.Status.CanTransitionTo(req.Status) {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot move intervention from %s to %s", current.Status, req.Status))
		}
		if req.Status != models.InterventionStatusCancelled {
			rc, err := s.cases.GetForShare(ctx, exec, scope.TenantID, current.RiskCaseID)
			if err != nil {
				return notFoundOr(err, "risk case")
			}
			if rc.Status.Terminal() {
				return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("owning case is %s", rc.Status))
			}
		}

		now := s.now()
		next := *current
		next.Status = req.Status
		next.UpdatedAt = now
		if notes := trimmedPtr(req.Notes); notes != nil {
			next.Notes = notes
		}
		if req.Status == models.InterventionStatusCompleted {
			next.CompletedAt = &now
		}
		if err := s.interventions.UpdateStatus(ctx, exec, &next, current.Status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConcurrencyConflict, "intervention changed concurrently")
			}
			return appErrors.Internal(err, "failed to update intervention")
		}
		if err := s.audit.Record(ctx, exec, scope, AuditEvent{
			Action:       interventionActions[req.Status],
			ResourceType: models.ResourceIntervention,
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
		return nil, passThrough(err, "failed to update intervention")
	}
	return result, nil
}

// List returns the interventions of a case.
func (s *InterventionService) List(ctx context.Context, scope models.Scope, riskCaseID string) ([]models.Intervention, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	list, err := s.interventions.ListByCase(ctx, scope.TenantID, riskCaseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list interventions")
	}
	return list, nil
}
