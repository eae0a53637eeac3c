package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics of the engagement engine.
// It implements cache.Observer. A nil *Metrics records nothing.
type Metrics struct {
	// Cache metrics
	CacheRequests   *prometheus.CounterVec
	CacheErrors     *prometheus.CounterVec
	Invalidations   *prometheus.CounterVec
	InvalidatedKeys *prometheus.CounterVec

	// Engagement metrics
	EngagementEvents  *prometheus.CounterVec
	CounterIncrements *prometheus.CounterVec
	CounterErrors     *prometheus.CounterVec
	ImpressionBumps   *prometheus.CounterVec

	// Job metrics
	ImpressionsReconciled *prometheus.CounterVec
	JobRuns               *prometheus.CounterVec
	JobDuration           *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Result cache lookups by namespace (result: hit or miss)
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_cache_requests_total",
			Help: "Result cache lookups by namespace and result",
		}, []string{"namespace", "result"}),

		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_cache_errors_total",
			Help: "Cache backend errors by operation",
		}, []string{"op"}),

		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_cache_invalidations_total",
			Help: "Scope invalidations by scope kind",
		}, []string{"scope"}),

		InvalidatedKeys: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_cache_invalidated_keys_total",
			Help: "Cache entries evicted through scope invalidation",
		}, []string{"scope"}),

		EngagementEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_engagement_events_total",
			Help: "Engagement events by kind and outcome",
		}, []string{"kind", "outcome"}),

		CounterIncrements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_counter_increments_total",
			Help: "Durable counter increments by entity kind and metric",
		}, []string{"entity_kind", "metric"}),

		CounterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_counter_errors_total",
			Help: "Counter store failures by operation",
		}, []string{"op"}),

		ImpressionBumps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_impression_bumps_total",
			Help: "Ephemeral impression increments by entity kind",
		}, []string{"entity_kind"}),

		ImpressionsReconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_impressions_reconciled_total",
			Help: "Impressions moved from the ephemeral counter into the durable store",
		}, []string{"entity_kind"}),

		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_job_runs_total",
			Help: "Background job runs by job and status",
		}, []string{"job", "status"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inkwell_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
	}
}

// CacheHit records a result cache hit
func (m *Metrics) CacheHit(namespace string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(namespace, "hit").Inc()
}

// CacheMiss records a result cache miss
func (m *Metrics) CacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(namespace, "miss").Inc()
}

// CacheError records a swallowed backend error
func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(op).Inc()
}

// ScopeInvalidated records an index invalidation and the entries it evicted
func (m *Metrics) ScopeInvalidated(kind string, keys int) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(kind).Inc()
	m.InvalidatedKeys.WithLabelValues(kind).Add(float64(keys))
}

// RecordEngagement records an engagement event outcome
func (m *Metrics) RecordEngagement(kind, outcome string) {
	if m == nil {
		return
	}
	m.EngagementEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordIncrement records a durable counter increment
func (m *Metrics) RecordIncrement(entityKind, metric string, n int64) {
	if m == nil {
		return
	}
	m.CounterIncrements.WithLabelValues(entityKind, metric).Add(float64(n))
}

// RecordCounterError records a failed counter store operation
func (m *Metrics) RecordCounterError(op string) {
	if m == nil {
		return
	}
	m.CounterErrors.WithLabelValues(op).Inc()
}

// RecordImpressionBumps records ephemeral impression increments
func (m *Metrics) RecordImpressionBumps(entityKind string, n int) {
	if m == nil {
		return
	}
	m.ImpressionBumps.WithLabelValues(entityKind).Add(float64(n))
}

// RecordReconciled records impressions applied to the durable store
func (m *Metrics) RecordReconciled(entityKind string, n int64) {
	if m == nil {
		return
	}
	m.ImpressionsReconciled.WithLabelValues(entityKind).Add(float64(n))
}

// RecordJobRun records one job execution
func (m *Metrics) RecordJobRun(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(seconds)
}
