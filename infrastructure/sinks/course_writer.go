// Package sinks provides the pipeline's output side: per-course table
// serialization and the destinations the tables are written to.
package sinks

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.CourseTableWriter = (*CSVCourseWriter)(nil)

// TableConfig controls the serialized table format. The column order
// is fixed for one run; every named column must be a known
// distribution row field.
type TableConfig struct {
	// Columns is the header and field order. Defaults to
	// domain.DefaultColumns.
	Columns []string `yaml:"columns" validate:"omitempty,min=1,dive,min=1"`

	// Delimiter joins fields within a line. Embedded delimiters in
	// values are not escaped; downstream consumers rely on this
	// historical contract.
	Delimiter string `yaml:"delimiter" validate:"omitempty,len=1"`

	// FilenameSuffix is appended to the sanitized course id to form
	// the output file name.
	FilenameSuffix string `yaml:"filename_suffix"`
}

// DefaultTableConfig returns the standard comma-delimited table format.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Columns:        domain.DefaultColumns(),
		Delimiter:      ",",
		FilenameSuffix: "_answer_distribution.csv",
	}
}

// lineTerminator ends every line, including the last one written
// before the file closes.
const lineTerminator = "\r\n"

// CSVCourseWriter serializes one course's distribution rows as a
// delimited UTF-8 text table with a single header line, and addresses
// each course's output through a SHA-1 hash partition directory so
// per-course files spread across a distributed filesystem's shards.
type CSVCourseWriter struct {
	name    string
	config  TableConfig
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewCSVCourseWriter creates a writer stage. Unset config fields take
// their defaults; unknown column names are rejected here rather than
// at write time. The metrics collector may be nil.
func NewCSVCourseWriter(name string, config TableConfig, metrics ports.MetricsCollector) (*CSVCourseWriter, error) {
	if name == "" {
		return nil, fmt.Errorf("writer name cannot be empty")
	}
	if len(config.Columns) == 0 {
		config.Columns = domain.DefaultColumns()
	}
	if config.Delimiter == "" {
		config.Delimiter = ","
	}
	if config.FilenameSuffix == "" {
		config.FilenameSuffix = "_answer_distribution.csv"
	}

	var probe domain.DistributionRow
	for _, col := range config.Columns {
		if _, ok := probe.Field(col); !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownColumn, col)
		}
	}

	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CSVCourseWriter{
		name:    name,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("csv-course-writer"),
	}, nil
}

// Name returns the unique identifier for this stage instance.
func (w *CSVCourseWriter) Name() string { return w.name }

// Validate checks that the stage is properly configured.
func (w *CSVCourseWriter) Validate() error {
	var probe domain.DistributionRow
	for _, col := range w.config.Columns {
		if _, ok := probe.Field(col); !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownColumn, col)
		}
	}
	return nil
}

// OutputPath returns the destination path for one course's table: the
// hexadecimal SHA-1 of the course id as the partition directory,
// followed by the course id with path separators replaced by
// underscores plus the configured suffix.
func (w *CSVCourseWriter) OutputPath(courseID string) string {
	digest := sha1.Sum([]byte(courseID))
	filename := strings.ReplaceAll(courseID, "/", "_") + w.config.FilenameSuffix
	return hex.EncodeToString(digest[:]) + "/" + filename
}

// Write emits the header line followed by one line per row. Every
// line, including the last, ends with the fixed terminator. Field
// values are written verbatim; embedded delimiters are not escaped.
func (w *CSVCourseWriter) Write(ctx context.Context, courseID string, rows []domain.DistributionRow, dst io.Writer) error {
	_, span := w.tracer.Start(ctx, "CSVCourseWriter.Write",
		trace.WithAttributes(
			attribute.String("stage.id", w.name),
			attribute.String("course_id", courseID),
			attribute.Int("rows", len(rows)),
		),
	)
	defer span.End()

	start := time.Now()
	buf := bufio.NewWriter(dst)

	if _, err := buf.WriteString(strings.Join(w.config.Columns, w.config.Delimiter) + lineTerminator); err != nil {
		span.RecordError(err)
		return fmt.Errorf("write header for %s: %w", courseID, err)
	}

	fields := make([]string, len(w.config.Columns))
	for _, row := range rows {
		for i, col := range w.config.Columns {
			// Columns were checked at construction; ok is always true.
			fields[i], _ = row.Field(col)
		}
		if _, err := buf.WriteString(strings.Join(fields, w.config.Delimiter) + lineTerminator); err != nil {
			span.RecordError(err)
			return fmt.Errorf("write row for %s: %w", courseID, err)
		}
	}

	if err := buf.Flush(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("flush table for %s: %w", courseID, err)
	}

	w.metrics.RecordCounter("rows_written", float64(len(rows)), map[string]string{"stage": w.name})
	w.metrics.RecordLatency("course_write", time.Since(start), map[string]string{"stage": w.name})
	return nil
}

// noopMetrics discards all measurements.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)        {}
