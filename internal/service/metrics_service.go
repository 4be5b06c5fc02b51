package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jak0d/timetiba-sub002/internal/models"
	"github.com/jak0d/timetiba-sub002/pkg/txmanager"
)

// MetricsService encapsulates Prometheus instrumentation for the API, the
// clash detector and the import pipeline. All record methods are nil-safe so
// callers never have to guard.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	detectionRuns     prometheus.Counter
	clashesDetected   *prometheus.CounterVec
	mutationConflicts prometheus.Counter
	publishTotal      *prometheus.CounterVec

	importRuns prometheus.Counter
	importRows *prometheus.CounterVec
	importJobs *prometheus.CounterVec
	queueDepth prometheus.Gauge

	txRetries *prometheus.CounterVec

	cacheHitRatio prometheus.Gauge
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the Prometheus collectors.
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

	detectionRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clash_detection_runs_total",
		Help: "Total full-schedule clash detection runs",
	})

	clashesDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clashes_detected_total",
		Help: "Clashes found by detection runs, by clash type",
	}, []string{"type"})

	mutationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_mutation_conflicts_total",
		Help: "Session mutations rejected by the incremental clash checks",
	})

	publishTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_publishes_total",
		Help: "Publish attempts by outcome",
	}, []string{"outcome"})

	importRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_runs_total",
		Help: "Completed import pipeline runs",
	})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Import candidate rows by outcome",
	}, []string{"outcome"})

	importJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_total",
		Help: "Background import jobs by terminal status",
	}, []string{"status"})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "import_queue_depth",
		Help: "Import jobs waiting in the queue",
	})

	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tx_retries_total",
		Help: "Transaction attempts retried, by failure classification",
	}, []string{"failure"})

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

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, detectionRuns, clashesDetected,
		mutationConflicts, publishTotal, importRuns, importRows, importJobs, queueDepth,
		txRetries, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		detectionRuns:     detectionRuns,
		clashesDetected:   clashesDetected,
		mutationConflicts: mutationConflicts,
		publishTotal:      publishTotal,
		importRuns:        importRuns,
		importRows:        importRows,
		importJobs:        importJobs,
		queueDepth:        queueDepth,
		txRetries:         txRetries,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDetectionRun counts one full detection run and its clashes by type.
func (m *MetricsService) RecordDetectionRun(report *models.DetectionReport) {
	if m == nil || report == nil {
		return
	}
	m.detectionRuns.Inc()
	for clashType, count := range report.Summary.ByType {
		m.clashesDetected.WithLabelValues(string(clashType)).Add(float64(count))
	}
}

// RecordMutationConflict counts clashes that rejected a session mutation.
func (m *MetricsService) RecordMutationConflict(clashes int) {
	if m == nil || clashes <= 0 {
		return
	}
	m.mutationConflicts.Add(float64(clashes))
}

// RecordPublish counts a publish attempt.
func (m *MetricsService) RecordPublish(published bool) {
	if m == nil {
		return
	}
	outcome := "published"
	if !published {
		outcome = "rejected"
	}
	m.publishTotal.WithLabelValues(outcome).Inc()
}

// RecordImportRun counts one pipeline run and its row outcomes.
func (m *MetricsService) RecordImportRun(result *models.ImportResult) {
	if m == nil || result == nil {
		return
	}
	m.importRuns.Inc()
	m.importRows.WithLabelValues("created").Add(float64(result.Created))
	m.importRows.WithLabelValues("updated").Add(float64(result.Updated))
	m.importRows.WithLabelValues("failed").Add(float64(result.Failed))
	m.importRows.WithLabelValues("skipped").Add(float64(result.Skipped))
	m.importRows.WithLabelValues("flagged").Add(float64(result.Flagged))
}

// RecordImportJob counts a background job reaching a terminal status.
func (m *MetricsService) RecordImportJob(status models.ImportJobStatus) {
	if m == nil {
		return
	}
	m.importJobs.WithLabelValues(string(status)).Inc()
}

// SetQueueDepth publishes the current import queue backlog.
func (m *MetricsService) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordTxRetry counts one retried transaction attempt.
func (m *MetricsService) RecordTxRetry(kind txmanager.FailureKind) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(kind.String()).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
