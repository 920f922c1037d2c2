package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	riskReconciles    *prometheus.CounterVec
	sweepDuration     *prometheus.HistogramVec
	sweepWarnings     *prometheus.CounterVec
	approvalDecisions *prometheus.CounterVec
	fanoutRecipients  *prometheus.CounterVec
	fanoutInserted    *prometheus.CounterVec

	cacheHitCount   uint64
	cacheMissCount  uint64
	requestCount    uint64
	sweepCount      uint64
	casesCreated    uint64
	casesUpdated    uint64
	casesResolved   uint64
	sweepWarningSum uint64
	decisionCount   uint64
	notifications   uint64
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	riskReconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_case_reconciles_total",
		Help: "Risk case reconciliations by risk type and outcome",
	}, []string{"risk_type", "outcome"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "risk_sweep_duration_seconds",
		Help:    "Duration of tenant risk sweeps",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"tenant", "cancelled"})

	sweepWarnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_sweep_warnings_total",
		Help: "Students skipped during sweeps by error code",
	}, []string{"code"})

	approvalDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_decisions_total",
		Help: "Approval decision attempts by decision and result",
	}, []string{"decision", "result"})

	fanoutRecipients := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_fanout_recipients_total",
		Help: "Recipients resolved during fan-out by scope",
	}, []string{"scope"})

	fanoutInserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_fanout_inserted_total",
		Help: "Notifications written during fan-out by scope",
	}, []string{"scope"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		riskReconciles, sweepDuration, sweepWarnings, approvalDecisions, fanoutRecipients, fanoutInserted, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		riskReconciles:    riskReconciles,
		sweepDuration:     sweepDuration,
		sweepWarnings:     sweepWarnings,
		approvalDecisions: approvalDecisions,
		fanoutRecipients:  fanoutRecipients,
		fanoutInserted:    fanoutInserted,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRiskReconcile counts one reconciliation outcome.
func (m *MetricsService) RecordRiskReconcile(riskType, outcome string) {
	if m == nil {
		return
	}
	m.riskReconciles.WithLabelValues(riskType, outcome).Inc()
	switch outcome {
	case "created":
		atomic.AddUint64(&m.casesCreated, 1)
	case "updated":
		atomic.AddUint64(&m.casesUpdated, 1)
	case "resolved":
		atomic.AddUint64(&m.casesResolved, 1)
	}
}

// RecordSweep records a finished sweep.
func (m *MetricsService) RecordSweep(summary *models.SweepSummary) {
	if m == nil || summary == nil {
		return
	}
	m.sweepDuration.WithLabelValues(summary.TenantID, fmt.Sprintf("%t", summary.Cancelled)).
		Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	for _, warning := range summary.Warnings {
		m.sweepWarnings.WithLabelValues(warning.Code).Inc()
	}
	atomic.AddUint64(&m.sweepCount, 1)
	atomic.AddUint64(&m.sweepWarningSum, uint64(len(summary.Warnings)))
}

// RecordApprovalDecision counts a decision attempt.
func (m *MetricsService) RecordApprovalDecision(decision, result string) {
	if m == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(decision, result).Inc()
	if result == "applied" {
		atomic.AddUint64(&m.decisionCount, 1)
	}
}

// RecordFanout counts resolved recipients and written notifications.
func (m *MetricsService) RecordFanout(scope string, recipients, inserted int) {
	if m == nil {
		return
	}
	m.fanoutRecipients.WithLabelValues(scope).Add(float64(recipients))
	m.fanoutInserted.WithLabelValues(scope).Add(float64(inserted))
	atomic.AddUint64(&m.notifications, uint64(inserted))
}

// Snapshot returns aggregated counters for the metrics endpoint.
func (m *MetricsService) Snapshot() models.EngineMetrics {
	if m == nil {
		return models.EngineMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	return models.EngineMetrics{
		RequestsTotal:        atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:        cacheRatio,
		SweepsTotal:          atomic.LoadUint64(&m.sweepCount),
		SweepWarningsTotal:   atomic.LoadUint64(&m.sweepWarningSum),
		CasesCreated:         atomic.LoadUint64(&m.casesCreated),
		CasesUpdated:         atomic.LoadUint64(&m.casesUpdated),
		CasesResolved:        atomic.LoadUint64(&m.casesResolved),
		DecisionsApplied:     atomic.LoadUint64(&m.decisionCount),
		NotificationsCreated: atomic.LoadUint64(&m.notifications),
		Goroutines:           runtime.NumGoroutine(),
		GeneratedAt:          time.Now().UTC(),
	}
}
