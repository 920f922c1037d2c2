package models

import "time"

// EngineMetrics is a point-in-time summary of engine activity since start.
type EngineMetrics struct {
	RequestsTotal        uint64    `json:"requests_total"`
	CacheHitRatio        float64   `json:"cache_hit_ratio"`
	SweepsTotal          uint64    `json:"sweeps_total"`
	SweepWarningsTotal   uint64    `json:"sweep_warnings_total"`
	CasesCreated         uint64    `json:"cases_created"`
	CasesUpdated         uint64    `json:"cases_updated"`
	CasesResolved        uint64    `json:"cases_resolved"`
	DecisionsApplied     uint64    `json:"decisions_applied"`
	NotificationsCreated uint64    `json:"notifications_created"`
	Goroutines           int       `json:"goroutines"`
	GeneratedAt          time.Time `json:"generated_at"`
}
