package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.RecordCounter("events_skipped", 1, map[string]string{"stage": "extract", "reason": "event_type"})
	pm.RecordCounter("events_skipped", 2, map[string]string{"stage": "extract", "reason": "event_type"})
	pm.RecordCounter("events_extracted", 5, map[string]string{"stage": "extract"})
	pm.RecordCounter("orphan", 1, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(
		pm.recordCounters.WithLabelValues("events_skipped", "extract", "event_type")))
	assert.Equal(t, 5.0, testutil.ToFloat64(
		pm.recordCounters.WithLabelValues("events_extracted", "extract", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		pm.recordCounters.WithLabelValues("orphan", "unknown", "")))
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.RecordGauge("courses_written", 12, nil)
	pm.RecordGauge("courses_written", 7, nil)

	assert.Equal(t, 7.0, testutil.ToFloat64(pm.runGauges.WithLabelValues("courses_written")))
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordLatency("course_write", 25*time.Millisecond, map[string]string{"stage": "writer"})
	pm.RecordLatency("course_write", 50*time.Millisecond, map[string]string{"stage": "writer"})

	count := testutil.CollectAndCount(pm.stageLatency, "answerdist_stage_duration_seconds")
	assert.Equal(t, 1, count, "one labeled series")
}
