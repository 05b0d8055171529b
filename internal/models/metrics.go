package models

import "time"

// SystemMetrics is a lightweight snapshot of in-process counters for the admin dashboard.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	GPACalculations          uint64    `json:"gpa_calculations"`
	DegreeSelections         uint64    `json:"degree_selections"`
	TemplateSubjectsCopied   uint64    `json:"template_subjects_copied"`
	PendingDegreesCommitted  uint64    `json:"pending_degrees_committed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
