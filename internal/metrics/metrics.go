// Package metrics exposes Prometheus metrics for the radar pipeline and
// the serve endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collection of Prometheus metrics the radar records.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	FeedFetchErrors  *prometheus.CounterVec
	RecordsMerged    prometheus.Gauge
	RelevantRecords  prometheus.Gauge
	CriticalRecords  prometheus.Gauge
	ChangesDetected  *prometheus.CounterVec
	IssuesCreated    prometheus.Counter
	Escalations      prometheus.Counter
	SuppressedEvents prometheus.Counter
	NotifyFailures   prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all radar metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnradar_runs_total",
				Help: "Total radar runs by outcome",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vulnradar_run_duration_seconds",
				Help:    "Wall-clock duration of full radar runs",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
			},
		),
		FeedFetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnradar_feed_fetch_errors_total",
				Help: "Feed fetches that failed and degraded to absent",
			},
			[]string{"feed"},
		),
		RecordsMerged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vulnradar_records_merged",
				Help: "Canonical records in the latest snapshot",
			},
		),
		RelevantRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vulnradar_records_relevant",
				Help: "Relevant records in the latest snapshot",
			},
		),
		CriticalRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vulnradar_records_critical",
				Help: "Critical records in the latest snapshot",
			},
		),
		ChangesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnradar_changes_detected_total",
				Help: "Change events detected, by type",
			},
			[]string{"type"},
		),
		IssuesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vulnradar_issues_created_total",
				Help: "Tracker issues created",
			},
		),
		Escalations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vulnradar_escalations_total",
				Help: "Escalation comments posted",
			},
		),
		SuppressedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vulnradar_escalations_suppressed_total",
				Help: "Escalations suppressed by the cooldown",
			},
		),
		NotifyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vulnradar_notify_failures_total",
				Help: "Tracker calls that failed after retries",
			},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.RunsTotal, m.RunDuration, m.FeedFetchErrors,
		m.RecordsMerged, m.RelevantRecords, m.CriticalRecords,
		m.ChangesDetected, m.IssuesCreated, m.Escalations,
		m.SuppressedEvents, m.NotifyFailures,
	)
	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
