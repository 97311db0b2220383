// Package metrics provides Prometheus metrics for the attendance store.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	clockEventsTotal  *prometheus.CounterVec
	cacheHitsTotal    *prometheus.CounterVec
	cacheMissesTotal  *prometheus.CounterVec
	archiveFetches    *prometheus.CounterVec
	reconcileOutcome  *prometheus.CounterVec
	sweptShardsTotal  prometheus.Counter
	lastWriteTimeUnix prometheus.Gauge
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics. Registration happens
// once per process; repeated calls return the same instance.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempusgeo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempusgeo_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		clockEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_clock_events_total",
				Help: "Total number of clock punches recorded",
			},
			[]string{"action"},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_cache_hits_total",
				Help: "In-process cache hits",
			},
			[]string{"kind"},
		),
		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_cache_misses_total",
				Help: "In-process cache misses",
			},
			[]string{"kind"},
		),
		archiveFetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_archive_fetches_total",
				Help: "Cold-tier fetches by outcome (cached, remote, failed)",
			},
			[]string{"outcome"},
		),
		reconcileOutcome: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempusgeo_reconcile_runs_total",
				Help: "Startup reconciliation runs by outcome (restored, skipped)",
			},
			[]string{"outcome"},
		),
		sweptShardsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempusgeo_swept_shards_total",
				Help: "Month shards deleted by the retention sweeper",
			},
		),
		lastWriteTimeUnix: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempusgeo_last_write_time_milliseconds",
				Help: "Current local write-time metadata in Unix milliseconds",
			},
		),
	}

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordClockEvent records a clock punch.
func (m *Metrics) RecordClockEvent(action string) {
	m.clockEventsTotal.WithLabelValues(action).Inc()
}

// RecordCacheHit records an in-process cache hit for the given kind.
func (m *Metrics) RecordCacheHit(kind string) {
	m.cacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records an in-process cache miss for the given kind.
func (m *Metrics) RecordCacheMiss(kind string) {
	m.cacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordArchiveFetch records a cold-tier fetch outcome.
func (m *Metrics) RecordArchiveFetch(outcome string) {
	m.archiveFetches.WithLabelValues(outcome).Inc()
}

// RecordReconcileOutcome records whether startup reconciliation restored or
// skipped.
func (m *Metrics) RecordReconcileOutcome(outcome string) {
	m.reconcileOutcome.WithLabelValues(outcome).Inc()
}

// RecordSweptShard counts a shard deleted by the retention sweeper.
func (m *Metrics) RecordSweptShard() {
	m.sweptShardsTotal.Inc()
}

// SetLastWriteTime publishes the current write-time metadata.
func (m *Metrics) SetLastWriteTime(ts int64) {
	m.lastWriteTimeUnix.Set(float64(ts))
}

// Middleware creates middleware that records HTTP metrics.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
