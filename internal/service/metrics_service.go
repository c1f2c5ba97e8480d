package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/bursary-api/internal/models"
)

// MetricsService owns the Prometheus registry and keeps running totals for snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	screenings      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	disbursements   *prometheus.CounterVec
	disbursedAmount prometheus.Counter
	notifications   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	submissionCount      uint64
	autoRejectCount      uint64
	disburseCount        uint64
	disburseFailCount    uint64
}

// NewMetricsService registers the HTTP, cache and workflow collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bursary",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bursary",
		Name:      "cache_latency_seconds",
		Help:      "Latency for cache lookups",
		Buckets:   prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bursary",
		Name:      "cache_write_seconds",
		Help:      "Latency for cache writes",
		Buckets:   prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bursary",
		Name:      "cache_hit_ratio",
		Help:      "Ratio of cache hits to total cache lookups",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by result",
	}, []string{"result"})

	screenings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "screenings_total",
		Help:      "Automated screening verdicts by outcome and trigger",
	}, []string{"outcome", "trigger"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "application_transitions_total",
		Help:      "Committed application status changes",
	}, []string{"from", "to"})

	disbursements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "disbursements_total",
		Help:      "Disbursement attempts by result",
	}, []string{"result"})

	disbursedAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "disbursed_amount_total",
		Help:      "Sum of funds disbursed",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bursary",
		Name:      "notifications_total",
		Help:      "Notification deliveries by channel and result",
	}, []string{"channel", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "bursary",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheLookups,
		screenings, transitions, disbursements, disbursedAmount, notifications, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheLookups:    cacheLookups,
		screenings:      screenings,
		transitions:     transitions,
		disbursements:   disbursements,
		disbursedAmount: disbursedAmount,
		notifications:   notifications,
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

// Registry returns the underlying registry.
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordScreening counts a screening verdict. trigger is "submit" or "edit".
func (m *MetricsService) RecordScreening(passed bool, trigger string) {
	if m == nil {
		return
	}
	outcome := "passed"
	if !passed {
		outcome = "auto_rejected"
		atomic.AddUint64(&m.autoRejectCount, 1)
	}
	if trigger == "submit" {
		atomic.AddUint64(&m.submissionCount, 1)
	}
	m.screenings.WithLabelValues(outcome, trigger).Inc()
}

// RecordTransition counts a committed status change.
func (m *MetricsService) RecordTransition(from, to models.ApplicationStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordDisbursement counts a disbursement attempt. amount is added only on success.
func (m *MetricsService) RecordDisbursement(success bool, amount float64) {
	if m == nil {
		return
	}
	if success {
		m.disbursements.WithLabelValues("success").Inc()
		m.disbursedAmount.Add(amount)
		atomic.AddUint64(&m.disburseCount, 1)
		return
	}
	m.disbursements.WithLabelValues("failure").Inc()
	atomic.AddUint64(&m.disburseFailCount, 1)
}

// RecordNotification counts a delivery attempt.
func (m *MetricsService) RecordNotification(channel string, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Submissions:              atomic.LoadUint64(&m.submissionCount),
		AutoRejections:           atomic.LoadUint64(&m.autoRejectCount),
		Disbursements:            atomic.LoadUint64(&m.disburseCount),
		FailedDisbursements:      atomic.LoadUint64(&m.disburseFailCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
