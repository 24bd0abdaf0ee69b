// Package ports defines the contracts between the pipeline's core
// transformations and the execution substrate that schedules them.
// The substrate owns partitioning, the shuffle, and retries; the core
// supplies the per-record and per-group functions declared here.
package ports

import (
	"context"
	"io"
	"iter"

	"github.com/ahrav/answerdist/internal/domain"
)

// EventExtractor turns one raw tracking-log line into at most one
// problem-check record.
// Extractors are stateless and safe for unbounded parallel execution
// across input shards.
type EventExtractor interface {
	// Name returns a unique identifier for this stage, used for
	// logging, metrics, and debugging.
	Name() string

	// Extract parses and validates one raw log line. ok is false for
	// any line failing a validation predicate; malformed input is
	// recovered locally and never surfaces as an error.
	Extract(line []byte) (rec domain.ProblemCheckRecord, ok bool)

	// Validate checks that the stage is properly configured.
	Validate() error
}

// LastEventReducer receives every problem-check record sharing one
// (course, problem, student) key and expands the most recent one into
// per-answer-part records.
// The substrate guarantees all values for one key arrive together in a
// single invocation, in arbitrary order; different keys may be reduced
// concurrently.
type LastEventReducer interface {
	Name() string

	// Reduce selects the latest record among values and emits one
	// AnswerPartRecord per visible answer part it contains. The result
	// is a pure, order-independent function of the grouped input.
	Reduce(ctx context.Context, key domain.EventKey, values iter.Seq[domain.ProblemCheckRecord]) ([]domain.AnswerPartRecord, error)

	Validate() error
}

// DistributionAggregator receives every answer-part record sharing one
// (course, answer part) key, filters ineligible records, normalizes
// answer values, and counts distinct answer variants.
type DistributionAggregator interface {
	Name() string

	// Reduce emits one DistributionRow per distinct surviving
	// (answer value, value id, variant, correctness) combination.
	// Row order within one key is unspecified.
	Reduce(ctx context.Context, key domain.AnswerKey, values iter.Seq[domain.AnswerPartRecord]) ([]domain.DistributionRow, error)

	Validate() error
}

// CourseTableWriter serializes all distribution rows for one course as
// a delimited text table. It is the only stage with side effects.
type CourseTableWriter interface {
	Name() string

	// Write emits the header line followed by one line per row to dst.
	// Write failures propagate to the substrate for retry handling.
	Write(ctx context.Context, courseID string, rows []domain.DistributionRow, dst io.Writer) error

	// OutputPath returns the destination path for one course's table,
	// a content-hash partition directory segment followed by the
	// sanitized course file name.
	OutputPath(courseID string) string

	Validate() error
}

// AnswerMetadata is the read-only lookup mapping an answer-part id to
// its authored metadata. It is loaded once before aggregation begins
// and may be shared across concurrent reduce invocations without
// locking.
type AnswerMetadata interface {
	// Lookup returns the entry for id, or ok=false when the source has
	// no entry for it.
	Lookup(id string) (entry domain.MetadataEntry, ok bool)

	// Len returns the number of entries in the source.
	Len() int
}

// LogSource enumerates and opens the partitions of an append-only
// tracking log. Partitions are processed independently and in
// parallel.
type LogSource interface {
	Partitions(ctx context.Context) ([]string, error)
	Open(ctx context.Context, partition string) (io.ReadCloser, error)
}

// Destination creates output objects addressed by slash-separated
// paths, such as a local directory tree or an object-store bucket.
// A created object is owned exclusively by its writer until closed.
type Destination interface {
	Create(ctx context.Context, path string) (io.WriteCloser, error)
}
