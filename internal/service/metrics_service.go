package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the timeclock
// engine: ingestion outcomes, lifecycle flags, sweep activity and the
// usual HTTP/DB/cache timings.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	ingestTotal         *prometheus.CounterVec
	duplicateReplays    prometheus.Counter
	needsReviewTotal    *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
	sweepClosedTotal    prometheus.Counter
	sweepFailedTotal    prometheus.Counter
	openShiftRetries    prometheus.Counter
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
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

	ingestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clock_events_ingested_total",
		Help: "Clock events ingested by outcome",
	}, []string{"outcome"})

	duplicateReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clock_events_duplicate_replays_total",
		Help: "Ingest calls resolved by an already-stored idempotency key",
	})

	needsReviewTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shifts_needs_review_total",
		Help: "Records flagged for human review by reason",
	}, []string{"reason"})

	classificationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "punctuality_classifications_total",
		Help: "Punctuality classifications by bucket",
	}, []string{"classification"})

	sweepClosedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shift_sweep_closed_total",
		Help: "Stale open shifts closed by the auto clock-out sweep",
	})

	sweepFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shift_sweep_failed_total",
		Help: "Shifts the sweep failed to close",
	})

	openShiftRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "open_shift_constraint_retries_total",
		Help: "Open-shift creations retried after losing a uniqueness race",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration, cacheLatency,
		cacheHits, cacheMisses, ingestTotal, duplicateReplays, needsReviewTotal,
		classificationTotal, sweepClosedTotal, sweepFailedTotal, openShiftRetries, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		dbQueryDuration:     dbQueryDuration,
		cacheLatency:        cacheLatency,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		ingestTotal:         ingestTotal,
		duplicateReplays:    duplicateReplays,
		needsReviewTotal:    needsReviewTotal,
		classificationTotal: classificationTotal,
		sweepClosedTotal:    sweepClosedTotal,
		sweepFailedTotal:    sweepFailedTotal,
		openShiftRetries:    openShiftRetries,
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

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
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

// RecordIngest counts an ingestion by outcome (stored, duplicate, rejected).
func (m *MetricsService) RecordIngest(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	if outcome == "duplicate" {
		m.duplicateReplays.Inc()
	}
}

// RecordNeedsReview counts a record flagged for review.
func (m *MetricsService) RecordNeedsReview(reason string) {
	if m == nil {
		return
	}
	m.needsReviewTotal.WithLabelValues(reason).Inc()
}

// RecordClassification counts a punctuality classification.
func (m *MetricsService) RecordClassification(classification string) {
	if m == nil {
		return
	}
	m.classificationTotal.WithLabelValues(classification).Inc()
}

// RecordSweep counts sweep results.
func (m *MetricsService) RecordSweep(closed, failed int) {
	if m == nil {
		return
	}
	m.sweepClosedTotal.Add(float64(closed))
	m.sweepFailedTotal.Add(float64(failed))
}

// RecordOpenShiftRetry counts a compare-and-retry round on shift creation.
func (m *MetricsService) RecordOpenShiftRetry() {
	if m == nil {
		return
	}
	m.openShiftRetries.Inc()
}
