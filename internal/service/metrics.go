// Package service contains the application services: the evaluation
// engine, the task manager and its polling worker, and the guardrail
// policy engine.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for evalgate.
// Pass to components that need to record metrics.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	ItemsTotal       *prometheus.CounterVec
	ScoresTotal      prometheus.Counter
	ActiveItems      prometheus.Gauge
	TasksTotal       *prometheus.CounterVec
	GuardrailChecks  *prometheus.CounterVec
	SinkErrorsTotal  *prometheus.CounterVec
	GenerationErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "runs_total",
				Help:      "Total evaluation runs",
			},
			[]string{"status"}, // status=ok/error/cancelled
		),
		RunDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "evalgate",
				Name:      "run_duration_seconds",
				Help:      "Evaluation run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13m
			},
			[]string{"eval"},
		),
		ItemsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "items_total",
				Help:      "Total dataset items processed",
			},
			[]string{"outcome"}, // outcome=scored/generation_error/skipped
		),
		ScoresTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "scores_total",
				Help:      "Total scores produced",
			},
		),
		ActiveItems: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "evalgate",
				Name:      "active_items",
				Help:      "Dataset items currently in flight",
			},
		),
		TasksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "tasks_total",
				Help:      "Total task status transitions",
			},
			[]string{"status"},
		),
		GuardrailChecks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "guardrail_checks_total",
				Help:      "Total guardrail policy evaluations",
			},
			[]string{"action"}, // action=allow/warn/block
		),
		SinkErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "sink_errors_total",
				Help:      "Total sink emit/flush failures",
			},
			[]string{"stage"}, // stage=emit/emit_run/flush
		),
		GenerationErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "evalgate",
				Name:      "generation_errors_total",
				Help:      "Total adapter generation failures recorded as scores",
			},
		),
	}
}
