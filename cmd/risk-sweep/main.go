package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-engine/internal/repository"
	"github.com/noah-isme/sma-risk-engine/internal/service"
	"github.com/noah-isme/sma-risk-engine/pkg/config"
	"github.com/noah-isme/sma-risk-engine/pkg/database"
	"github.com/noah-isme/sma-risk-engine/pkg/keylock"
	"github.com/noah-isme/sma-risk-engine/pkg/logger"
)

// risk-sweep evaluates every active student of one or more tenants and prints
// a JSON summary per tenant. Exit status is 1 when any sweep had failures.
func main() {
	os.Exit(run())
}

func run() int {
	tenants := flag.String("tenants", "", "comma separated tenant ids (defaults to RISK_SWEEP_TENANTS)")
	concurrency := flag.Int("concurrency", 0, "students evaluated in parallel (defaults to RISK_SWEEP_CONCURRENCY)")
	rate := flag.Float64("rate", -1, "student evaluations per second, 0 for unlimited")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	targets := cfg.Risk.SweepTenants
	if *tenants != "" {
		targets = nil
		for _, t := range strings.Split(*tenants, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
	}
	if len(targets) == 0 {
		logr.Fatal("no tenants to sweep")
	}

	sweepCfg := service.RiskSweepConfig{Concurrency: cfg.Risk.SweepConcurrency, RatePerSecond: cfg.Risk.SweepRateLimit}
	if *concurrency > 0 {
		sweepCfg.Concurrency = *concurrency
	}
	if *rate >= 0 {
		sweepCfg.RatePerSecond = *rate
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	ids := service.UUIDAllocator{}
	metricsSvc := service.NewMetricsService()
	directory := repository.NewDirectoryRepository(db)
	riskSvc := service.NewRiskCaseService(repository.NewRiskCaseRepository(db), repository.NewFactRepository(db),
		service.NewAuditRecorder(repository.NewAuditRepository(db), ids), database.NewTransactor(db), logr,
		service.WithRiskWindowDays(cfg.Risk.WindowDays),
		service.WithCaseOpenNotifications(directory, repository.NewNotificationRepository(db)),
		service.WithRiskCaseLocker(keylock.NewLocal()),
		service.WithRiskCaseIDs(ids),
		service.WithRiskCaseMetrics(metricsSvc),
	)
	sweeps := service.NewRiskSweepService(repository.NewStudentRepository(db), riskSvc, sweepCfg, metricsSvc, logr)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := false
	for _, tenantID := range targets {
		summary, err := sweeps.SweepTenantRisk(ctx, tenantID)
		if err != nil {
			logr.Error("risk sweep failed", zap.String("tenant_id", tenantID), zap.Error(err))
			failed = true
			continue
		}
		if err := enc.Encode(summary); err != nil {
			logr.Error("failed to write summary", zap.Error(err))
		}
		if len(summary.Warnings) > 0 || summary.Cancelled {
			failed = true
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed {
		return 1
	}
	return 0
}
