// Package stages provides the answer distribution pipeline's transform
// stages. Each stage implements one of the ports contracts as a named,
// stateless unit that is safe for concurrent execution across keys.
package stages

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by stage constructors.
var (
	// ErrEmptyStageName is returned when attempting to create a stage
	// with an empty name.
	ErrEmptyStageName = errors.New("stage name cannot be empty")

	// ErrNilMetadata is returned when the distribution aggregator is
	// constructed without a metadata lookup. A metadata index is
	// required even when it holds no entries.
	ErrNilMetadata = errors.New("answer metadata lookup is required")
)

// Metric names recorded by the stages.
const (
	MetricEventsExtracted = "events_extracted"
	MetricEventsSkipped   = "events_skipped"
	MetricAnswerParts     = "answer_parts_emitted"
	MetricRecordsDropped  = "answer_records_dropped"
	MetricRowsEmitted     = "distribution_rows_emitted"
)

// Package-level validator instance for stage configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// noopMetrics discards all measurements. Used when a stage is built
// without a collector.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)        {}
