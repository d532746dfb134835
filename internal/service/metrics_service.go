package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the
// conflict cache and the scheduling engine.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	detectionDuration *prometheus.HistogramVec
	conflictsFound    *prometheus.CounterVec
	writeRejections   *prometheus.CounterVec
	importCandidates  *prometheus.CounterVec
	lockWait          prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
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
		Help:    "Latency for cache lookups",
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

	detectionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_detection_duration_seconds",
		Help:    "Time spent running conflict detection",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"operation"})

	conflictsFound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_conflicts_detected_total",
		Help: "Conflicts returned by the detector, by resource kind",
	}, []string{"kind"})

	writeRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_write_rejections_total",
		Help: "Entry writes rejected, by error code",
	}, []string{"code"})

	importCandidates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_import_candidates_total",
		Help: "Bulk import candidates by mode and outcome",
	}, []string{"mode", "outcome"})

	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_tenant_lock_wait_seconds",
		Help:    "Time spent waiting for the per-tenant write lock",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		detectionDuration, conflictsFound, writeRejections, importCandidates, lockWait, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		detectionDuration: detectionDuration,
		conflictsFound:    conflictsFound,
		writeRejections:   writeRejections,
		importCandidates:  importCandidates,
		lockWait:          lockWait,
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

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDetection records one detector run and the conflicts it produced.
func (m *MetricsService) ObserveDetection(operation string, duration time.Duration, conflicts []models.Conflict) {
	if m == nil {
		return
	}
	m.detectionDuration.WithLabelValues(operation).Observe(duration.Seconds())
	for _, c := range conflicts {
		m.conflictsFound.WithLabelValues(string(c.Kind)).Inc()
	}
}

// RecordWriteRejection counts an entry write refused with code.
func (m *MetricsService) RecordWriteRejection(code string) {
	if m == nil {
		return
	}
	m.writeRejections.WithLabelValues(code).Inc()
}

// RecordImport counts the outcome of every candidate of a batch.
func (m *MetricsService) RecordImport(result *models.BatchResult) {
	if m == nil || result == nil {
		return
	}
	mode := string(result.Mode)
	m.importCandidates.WithLabelValues(mode, "accepted").Add(float64(len(result.Accepted)))
	for _, r := range result.Rejected {
		m.importCandidates.WithLabelValues(mode, string(r.Reason)).Inc()
	}
	m.importCandidates.WithLabelValues(mode, "skipped").Add(float64(len(result.Skipped)))
}

// ObserveLockWait records how long a writer waited for its tenant lock.
func (m *MetricsService) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}
