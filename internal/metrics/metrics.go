package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics engine.
type Metrics struct {
	// Ingestion metrics
	RecordsIngested *prometheus.CounterVec
	RecordsDeleted  *prometheus.CounterVec
	IngestLogErrors prometheus.Counter

	// Summary rollup metrics
	SummaryRecomputes *prometheus.CounterVec
	RecomputeLatency  prometheus.Histogram

	// A/B testing metrics
	TestAnalyses *prometheus.CounterVec
	TestsStarted prometheus.Counter
	TestsDecided prometheus.Counter

	// Recommendation metrics
	ReportsServed          prometheus.Counter
	RecommendationsEmitted *prometheus.CounterVec

	// System metrics
	ActiveCampaigns prometheus.Gauge
	DBConnections   *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		RecordsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_records_ingested_total",
				Help:      "Metric record upserts accepted at the ingestion boundary",
			},
			[]string{"campaign_id"},
		),
		RecordsDeleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_records_deleted_total",
				Help:      "Metric record deletions",
			},
			[]string{"campaign_id"},
		),
		IngestLogErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_log_errors_total",
				Help:      "Failed appends to the ingestion event log",
			},
		),
		SummaryRecomputes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_recomputes_total",
				Help:      "Campaign summary recomputations by trigger",
			},
			[]string{"trigger"}, // ingest, delete, demand
		),
		RecomputeLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "summary_recompute_seconds",
				Help:      "Full rollup latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		TestAnalyses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ab_test_analyses_total",
				Help:      "A/B test analyses by outcome",
			},
			[]string{"outcome"}, // completed, inconclusive, insufficient_data
		),
		TestsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ab_tests_started_total",
				Help:      "A/B tests moved to running",
			},
		),
		TestsDecided: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ab_tests_decided_total",
				Help:      "A/B tests completed with a significant winner",
			},
		),
		ReportsServed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weekly_reports_served_total",
				Help:      "Weekly reports generated",
			},
		),
		RecommendationsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_emitted_total",
				Help:      "Recommendations emitted by priority",
			},
			[]string{"priority"},
		),
		ActiveCampaigns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_campaigns",
				Help:      "Number of active campaigns",
			},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest records an accepted metric record upsert.
func (m *Metrics) RecordIngest(campaignID string) {
	m.RecordsIngested.WithLabelValues(campaignID).Inc()
}

// RecordDelete records a metric record deletion.
func (m *Metrics) RecordDelete(campaignID string) {
	m.RecordsDeleted.WithLabelValues(campaignID).Inc()
}

// RecordRecompute records a summary recomputation and its latency.
func (m *Metrics) RecordRecompute(trigger string, elapsed time.Duration) {
	m.SummaryRecomputes.WithLabelValues(trigger).Inc()
	m.RecomputeLatency.Observe(elapsed.Seconds())
}

// RecordAnalysis records an A/B analysis outcome.
func (m *Metrics) RecordAnalysis(outcome string) {
	m.TestAnalyses.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.TestsDecided.Inc()
	}
}

// RecordRecommendations records a served report and its emitted advice.
func (m *Metrics) RecordRecommendations(priorities []string) {
	m.ReportsServed.Inc()
	for _, p := range priorities {
		m.RecommendationsEmitted.WithLabelValues(p).Inc()
	}
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
