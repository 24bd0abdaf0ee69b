package stages

import (
	"sync"
	"time"
)

// recordingMetrics captures counter increments keyed by
// "metric/reason" so tests can assert on skip and drop accounting.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name+"/"+labels["reason"]] += int(value)
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}

func (m *recordingMetrics) RecordGauge(string, float64, map[string]string) {}
