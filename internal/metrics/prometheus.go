package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Distribution metrics
	DistributionsTotal *prometheus.CounterVec
	EligibleItems      prometheus.Gauge

	// Item pool metrics
	ItemsSubmitted prometheus.Counter
	ReportsTotal   prometheus.Counter
	ItemsExcluded  prometheus.Counter

	// Reset metrics
	ResetsTotal   *prometheus.CounterVec
	ResetRecords  *prometheus.CounterVec
	ResetDuration *prometheus.HistogramVec
	ResetFailures prometheus.Counter

	// Authorization metrics
	UnauthorizedTotal *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec

	IdempotentReplays prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates Prometheus metrics registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DistributionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_distributions_total",
				Help: "Distribution requests by outcome",
			},
			[]string{"outcome"},
		),

		EligibleItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispenser_eligible_items",
				Help: "Eligible items seen by the most recent draw",
			},
		),

		ItemsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispenser_items_submitted_total",
				Help: "Total number of items added to the pool",
			},
		),

		ReportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispenser_reports_total",
				Help: "Total number of item reports",
			},
		),

		ItemsExcluded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispenser_items_excluded_total",
				Help: "Items that crossed the report threshold",
			},
		),

		ResetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_resets_total",
				Help: "Quota resets by trigger and scope",
			},
			[]string{"trigger", "scope"},
		),

		ResetRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_reset_records_total",
				Help: "Usage records zeroed by resets",
			},
			[]string{"trigger"},
		),

		ResetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispenser_reset_duration_seconds",
				Help:    "Duration of tenant-wide resets",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),

		ResetFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispenser_scheduled_reset_failures_total",
				Help: "Tenants whose scheduled reset failed",
			},
		),

		UnauthorizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_unauthorized_total",
				Help: "Rejected administrative commands",
			},
			[]string{"operation"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		IdempotentReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispenser_idempotent_replays_total",
				Help: "Distributions answered from the idempotency store",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispenser_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordDistribution counts a distribution outcome
func (m *Metrics) RecordDistribution(outcome string) {
	m.DistributionsTotal.WithLabelValues(outcome).Inc()
}

// RecordReset counts a reset and the records it touched
func (m *Metrics) RecordReset(trigger, scope string, records int64) {
	m.ResetsTotal.WithLabelValues(trigger, scope).Inc()
	if records > 0 {
		m.ResetRecords.WithLabelValues(trigger).Add(float64(records))
	}
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
