package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-risk-engine/api/swagger"
	"github.com/noah-isme/sma-risk-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-risk-engine/internal/middleware"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/internal/repository"
	"github.com/noah-isme/sma-risk-engine/internal/service"
	"github.com/noah-isme/sma-risk-engine/pkg/cache"
	"github.com/noah-isme/sma-risk-engine/pkg/config"
	"github.com/noah-isme/sma-risk-engine/pkg/database"
	"github.com/noah-isme/sma-risk-engine/pkg/keylock"
	"github.com/noah-isme/sma-risk-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-risk-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-risk-engine/pkg/middleware/requestid"
)

// @title SMA Risk & Governance Engine
// @version 0.1.0
// @description Student risk cases, interventions, approvals and marking fan-out
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Directory.CacheEnabled || cfg.Lock.Backend == config.LockBackendRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	tx := database.NewTransactor(db)
	ids := service.UUIDAllocator{}
	validate := service.NewValidator()

	var locker keylock.Locker = keylock.NewLocal()
	if cfg.Lock.Backend == config.LockBackendRedis {
		locker = keylock.NewRedis(redisClient, cfg.Lock.TTL, keylock.WithLostHandler(func(key string, err error) {
			logr.Warn("lock lease lost", zap.String("key", key), zap.Error(err))
		}))
	}

	var directory service.DirectoryProvider = repository.NewDirectoryRepository(db)
	if cfg.Directory.CacheEnabled {
		cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Directory.CacheTTL, logr, true)
		directory = service.NewCachedDirectory(directory, cacheSvc, cfg.Directory.CacheTTL)
	}

	auditRecorder := service.NewAuditRecorder(repository.NewAuditRepository(db), ids)
	notifications := repository.NewNotificationRepository(db)
	riskCases := repository.NewRiskCaseRepository(db)
	students := repository.NewStudentRepository(db)

	riskSvc := service.NewRiskCaseService(riskCases, repository.NewFactRepository(db), auditRecorder, tx, logr,
		service.WithRiskWindowDays(cfg.Risk.WindowDays),
		service.WithCaseOpenNotifications(directory, notifications),
		service.WithRiskCaseLocker(locker),
		service.WithRiskCaseIDs(ids),
		service.WithRiskCaseMetrics(metricsSvc),
		service.WithRiskCaseValidator(validate),
	)
	interventionSvc := service.NewInterventionService(repository.NewInterventionRepository(db), riskCases, auditRecorder, tx, ids, validate, logr)
	approvalSvc := service.NewApprovalService(repository.NewApprovalRepository(db), notifications, auditRecorder, tx, logr,
		service.WithApprovalIDs(ids),
		service.WithApprovalMetrics(metricsSvc),
		service.WithApprovalValidator(validate),
	)
	fanoutSvc := service.NewFanoutService(repository.NewMarkingRequestRepository(db), notifications, directory, auditRecorder, tx, logr,
		service.WithFanoutIDs(ids),
		service.WithFanoutMetrics(metricsSvc),
		service.WithFanoutValidator(validate),
	)
	sweepSvc := service.NewRiskSweepService(students, riskSvc, service.RiskSweepConfig{
		Concurrency:   cfg.Risk.SweepConcurrency,
		RatePerSecond: cfg.Risk.SweepRateLimit,
	}, metricsSvc, logr)

	// The queue always runs so async sweeps can be requested over HTTP; the
	// periodic ticker only when enabled.
	var interval time.Duration
	if cfg.Risk.SweepEnabled {
		interval = cfg.Risk.SweepInterval
	}
	scheduler := service.NewSweepScheduler(sweepSvc, cfg.Risk.SweepTenants, interval, 1, logr)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		verifier:      service.NewTokenVerifier(cfg.JWT.Secret),
		riskCases:     handler.NewRiskCaseHandler(riskSvc),
		interventions: handler.NewInterventionHandler(interventionSvc),
		approvals:     handler.NewApprovalHandler(approvalSvc),
		markings:      handler.NewMarkingHandler(fanoutSvc),
		audit:         handler.NewAuditHandler(auditRecorder),
		sweeps:        handler.NewSweepHandler(sweepSvc, scheduler),
		metrics:       metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type routeDeps struct {
	verifier      internalmiddleware.TokenValidator
	riskCases     *handler.RiskCaseHandler
	interventions *handler.InterventionHandler
	approvals     *handler.ApprovalHandler
	markings      *handler.MarkingHandler
	audit         *handler.AuditHandler
	sweeps        *handler.SweepHandler
	metrics       *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	api.Use(internalmiddleware.JWT(d.verifier))

	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RolePrincipal, models.RoleCounselor)
	deciders := internalmiddleware.RequireRoles(models.RoleAdmin, models.RolePrincipal)

	api.GET("/risk-cases", d.riskCases.List)
	api.POST("/risk-cases", staff, d.riskCases.Open)
	api.GET("/risk-cases/:id", d.riskCases.Get)
	api.POST("/risk-cases/:id/start", staff, d.riskCases.Start)
	api.POST("/risk-cases/:id/close", staff, d.riskCases.Close)
	api.PUT("/risk-cases/:id/severity", staff, d.riskCases.OverrideSeverity)
	api.GET("/risk-cases/:id/interventions", d.interventions.List)
	api.POST("/risk-cases/:id/interventions", staff, d.interventions.Create)
	api.PATCH("/interventions/:id", d.interventions.Transition)

	api.POST("/students/:studentId/risk/evaluate", staff, d.riskCases.Evaluate)
	api.GET("/students/:studentId/risk-cases", d.riskCases.ActiveForStudent)
	api.POST("/risk/sweeps", deciders, d.sweeps.Run)

	api.POST("/approvals", d.approvals.Submit)
	api.GET("/approvals", d.approvals.List)
	api.GET("/approvals/:id", d.approvals.Get)
	api.POST("/approvals/:id/decision", deciders, d.approvals.Decide)
	api.POST("/approvals/:id/resubmit", d.approvals.Resubmit)
	api.GET("/approvals/:id/decisions", d.approvals.Decisions)

	api.POST("/marking-requests", staff, d.markings.Create)
	api.GET("/marking-requests/:id", d.markings.Get)
	api.POST("/marking-requests/:id/fanout", staff, d.markings.Refanout)
	api.PATCH("/marking-requests/:id/status", d.markings.UpdateStatus)

	api.GET("/notifications", d.markings.Notifications)
	api.POST("/notifications/:id/read", d.markings.MarkRead)

	api.GET("/audit-logs", deciders, d.audit.List)
	api.GET("/audit-logs/export", deciders, d.audit.Export)
	api.GET("/metrics/summary", deciders, d.metrics.Snapshot)
}
