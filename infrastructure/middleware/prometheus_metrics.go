// Package middleware provides cross-cutting concerns for the answer
// distribution pipeline.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides monitoring of extraction coverage, reduce
// throughput, and write latency for pipeline runs.
type PrometheusMetrics struct {
	recordCounters *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	runGauges      *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and
// registers its metrics with the provided registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		recordCounters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "answerdist_records_total",
				Help: "Records processed per stage, labeled by outcome.",
			},
			[]string{"metric", "stage", "reason"},
		),
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "answerdist_stage_duration_seconds",
				Help:    "Execution time of pipeline stage operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "stage"},
		),
		runGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "answerdist_run_state",
				Help: "Current run state values, such as courses produced.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	stage, ok := labels["stage"]
	if !ok {
		stage = "unknown"
	}
	pm.stageLatency.WithLabelValues(operation, stage).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by
// incrementing the per-stage record counter.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	stage, ok := labels["stage"]
	if !ok {
		stage = "unknown"
	}
	pm.recordCounters.WithLabelValues(metric, stage, labels["reason"]).Add(value)
}

// RecordGauge implements the MetricsCollector interface by setting a
// run-state gauge.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.runGauges.WithLabelValues(metric).Set(value)
}
