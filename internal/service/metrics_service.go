package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
// All methods are safe on a nil receiver.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	gpaCalculations  *prometheus.CounterVec
	degreeSelections *prometheus.CounterVec
	templatesCopied  prometheus.Counter
	pendingCommitted prometheus.Counter
	mailJobs         *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	gpaCount             uint64
	selectionCount       uint64
	copiedCount          uint64
	pendingCount         uint64
}

// NewMetricsService registers the HTTP, cache and GPA workflow collectors.
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

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	gpaCalculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gpa_calculations_total",
		Help: "GPA computations served, by query type",
	}, []string{"type"})

	degreeSelections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "degree_selections_total",
		Help: "Degree selection commands, by resulting state",
	}, []string{"state"})

	templatesCopied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "degree_template_subjects_copied_total",
		Help: "Subjects created from degree templates",
	})

	pendingCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_degrees_committed_total",
		Help: "Pending degree choices committed on first subject write",
	})

	mailJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_jobs_total",
		Help: "Outbound mail jobs, by outcome",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		gpaCalculations, degreeSelections, templatesCopied, pendingCommitted, mailJobs, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		gpaCalculations:  gpaCalculations,
		degreeSelections: degreeSelections,
		templatesCopied:  templatesCopied,
		pendingCommitted: pendingCommitted,
		mailJobs:         mailJobs,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordGPACalculation counts a computed (not cached) GPA response.
func (m *MetricsService) RecordGPACalculation(queryType models.GPAQueryType) {
	if m == nil {
		return
	}
	m.gpaCalculations.WithLabelValues(string(queryType)).Inc()
	atomic.AddUint64(&m.gpaCount, 1)
}

// RecordDegreeSelection counts a selection command and the subjects it copied.
func (m *MetricsService) RecordDegreeSelection(state models.SelectionState, copied int) {
	if m == nil {
		return
	}
	m.degreeSelections.WithLabelValues(string(state)).Inc()
	atomic.AddUint64(&m.selectionCount, 1)
	if copied > 0 {
		m.templatesCopied.Add(float64(copied))
		atomic.AddUint64(&m.copiedCount, uint64(copied))
	}
}

// RecordPendingCommit counts a materialized pending degree.
func (m *MetricsService) RecordPendingCommit() {
	if m == nil {
		return
	}
	m.pendingCommitted.Inc()
	atomic.AddUint64(&m.pendingCount, 1)
}

// RecordMailJob counts a mail job outcome such as "sent" or "failed".
func (m *MetricsService) RecordMailJob(status string) {
	if m == nil {
		return
	}
	m.mailJobs.WithLabelValues(status).Inc()
}

// TrackQueueDepth exports the number of buffered jobs in the named queue as a gauge.
func (m *MetricsService) TrackQueueDepth(queue string, depth func() int) error {
	if m == nil || depth == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "job_queue_depth",
		Help:        "Jobs waiting in a background queue",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 {
		return float64(depth())
	})
	return m.registry.Register(gauge)
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		GPACalculations:          atomic.LoadUint64(&m.gpaCount),
		DegreeSelections:         atomic.LoadUint64(&m.selectionCount),
		TemplateSubjectsCopied:   atomic.LoadUint64(&m.copiedCount),
		PendingDegreesCommitted:  atomic.LoadUint64(&m.pendingCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
