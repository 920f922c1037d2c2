package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

type studentLister interface {
	ActiveStudentIDs(ctx context.Context, tenantID string) ([]string, error)
}

type studentEvaluator interface {
	EvaluateStudent(ctx context.Context, scope models.Scope, studentID string) (*models.RiskEvaluation, error)
}

// RiskSweepConfig tunes batch evaluation.
type RiskSweepConfig struct {
	Concurrency int
	// RatePerSecond caps student evaluations per second; zero disables the cap.
	RatePerSecond float64
}

// RiskSweepService evaluates every active student of a tenant. Students run
// concurrently and independently; one student's failure becomes a warning
// and never stops the sweep. Cancellation is checked between students.
type RiskSweepService struct {
	students    studentLister
	evaluator   studentEvaluator
	concurrency int
	limiter     *rate.Limiter
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewRiskSweepService constructs the service.
func NewRiskSweepService(students studentLister, evaluator studentEvaluator, cfg RiskSweepConfig, metrics *MetricsService, logger *zap.Logger) *RiskSweepService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RiskSweepService{
		students:    students,
		evaluator:   evaluator,
		concurrency: cfg.Concurrency,
		metrics:     metrics,
		logger:      logger,
		now:         systemClock,
	}
	if cfg.RatePerSecond > 0 {
		svc.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return svc
}

// SweepTenantRisk reconciles every active student of tenantID. It returns an
// error only when the roster cannot be read; a cancelled sweep returns the
// partial summary with Cancelled set.
func (s *RiskSweepService) SweepTenantRisk(ctx context.Context, tenantID string) (*models.SweepSummary, error) {
	scope := models.SystemScope(tenantID)
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	summary := &models.SweepSummary{TenantID: tenantID, StartedAt: s.now(), Warnings: []models.SweepWarning{}}

	studentIDs, err := s.students.ActiveStudentIDs(ctx, tenantID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list active students")
	}
	summary.Students = len(studentIDs)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, studentID := range studentIDs {
		if ctx.Err() != nil {
			break
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}
		studentID := studentID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			eval, err := s.evaluator.EvaluateStudent(ctx, scope, studentID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				summary.Warnings = append(summary.Warnings, s.warning(tenantID, studentID, err))
				return nil
			}
			summary.Evaluated++
			summary.Created += eval.Created
			summary.Updated += eval.Updated
			summary.Resolved += eval.Resolved
			summary.Unchanged += eval.Unchanged
			return nil
		})
	}
	_ = g.Wait()

	summary.Cancelled = ctx.Err() != nil
	summary.FinishedAt = s.now()
	s.metrics.RecordSweep(summary)
	s.logger.Info("risk sweep finished",
		zap.String("tenant_id", tenantID),
		zap.Int("students", summary.Students),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("resolved", summary.Resolved),
		zap.Int("warnings", len(summary.Warnings)),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (s *RiskSweepService) warning(tenantID, studentID string, err error) models.SweepWarning {
	appErr := appErrors.FromError(err)
	fields := []zap.Field{zap.String("tenant_id", tenantID), zap.String("student_id", studentID), zap.Error(err)}
	if errors.Is(err, appErrors.ErrUpstreamUnavailable) {
		s.logger.Warn("risk evaluation skipped, upstream unavailable", fields...)
	} else {
		s.logger.Error("risk evaluation failed", fields...)
	}
	return models.SweepWarning{StudentID: studentID, Code: appErr.Code, Message: appErr.Message}
}
