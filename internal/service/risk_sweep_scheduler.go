package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-engine/pkg/jobs"
)

// JobTypeRiskSweep tags sweep jobs on the queue.
const JobTypeRiskSweep = "risk_sweep"

// ErrSweepInFlight is returned when a tenant's sweep is already queued or running.
var ErrSweepInFlight = errors.New("risk sweep already in flight")

// SweepScheduler enqueues tenant sweeps on a job queue, periodically and on
// demand. The queue refuses a second job for a tenant while one is in flight.
type SweepScheduler struct {
	queue    *jobs.Queue
	tenants  []string
	interval time.Duration
	logger   *zap.Logger
}

// NewSweepScheduler builds a scheduler and its queue. The queue is not started.
func NewSweepScheduler(sweeps *RiskSweepService, tenants []string, interval time.Duration, workers int, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		tenantID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected sweep payload %T", job.Payload)
		}
		_, err := sweeps.SweepTenantRisk(ctx, tenantID)
		return err
	}
	queue := jobs.NewQueue("risk-sweeps", handler, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: 1,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return &SweepScheduler{queue: queue, tenants: tenants, interval: interval, logger: logger}
}

// Start runs the queue and, when an interval is set, a ticker that enqueues
// every configured tenant. It returns immediately; ctx stops both.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.interval <= 0 || len(s.tenants) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, tenantID := range s.tenants {
					if err := s.Trigger(tenantID); err != nil && !errors.Is(err, ErrSweepInFlight) {
						s.logger.Warn("failed to schedule risk sweep", zap.String("tenant_id", tenantID), zap.Error(err))
					}
				}
			}
		}
	}()
}

// Stop drains workers.
func (s *SweepScheduler) Stop() {
	s.queue.Stop()
}

// Trigger enqueues one sweep for tenantID.
func (s *SweepScheduler) Trigger(tenantID string) error {
	err := s.queue.Enqueue(jobs.Job{ID: sweepJobID(tenantID), Type: JobTypeRiskSweep, Payload: tenantID})
	if errors.Is(err, jobs.ErrDuplicateJob) {
		return ErrSweepInFlight
	}
	return err
}

// InFlight reports whether tenantID has a sweep queued or running.
func (s *SweepScheduler) InFlight(tenantID string) bool {
	return s.queue.InFlight(sweepJobID(tenantID))
}

func sweepJobID(tenantID string) string {
	return JobTypeRiskSweep + ":" + tenantID
}
