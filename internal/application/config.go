// Package application wires the pipeline stages into a runnable whole:
// configuration, the staged-format codec, and a local shared-nothing
// execution engine for closed historical partitions.
package application

import (
	"github.com/ahrav/answerdist/infrastructure/sinks"
	"github.com/ahrav/answerdist/infrastructure/stages"
)

// PipelineConfig is the complete specification for one answer
// distribution run and the primary configuration entry point.
type PipelineConfig struct {
	// Workers bounds how many partitions and key groups are processed
	// concurrently. Zero means one worker per logical CPU.
	Workers int `yaml:"workers" validate:"omitempty,min=1,max=256"`

	// SpoolDir, when set, stages last-event reducer output through
	// tab-separated files in this directory instead of handing it to
	// the aggregation phase in memory, mirroring how an external
	// file-based shuffle would move the data.
	SpoolDir string `yaml:"spool_dir"`

	// Source locates the tracking-log partitions to process.
	Source SourceConfig `yaml:"source" validate:"required"`

	// Metadata locates the answer metadata JSON source. When empty,
	// the run proceeds with an empty index and legacy records are
	// dropped for lack of classification.
	Metadata MetadataConfig `yaml:"metadata"`

	// Aggregator configures distribution eligibility filtering.
	Aggregator stages.DistributionAggregatorConfig `yaml:"aggregator"`

	// Table configures the serialized output format.
	Table sinks.TableConfig `yaml:"table"`

	// Output selects and configures the write destination.
	Output OutputConfig `yaml:"output" validate:"required"`
}

// SourceConfig locates tracking-log partitions on a local filesystem.
type SourceConfig struct {
	// Dir is the directory holding the log partitions.
	Dir string `yaml:"dir" validate:"required"`

	// Glob filters partition files within Dir. Defaults to "*.log".
	Glob string `yaml:"glob"`
}

// MetadataConfig locates the externally supplied answer metadata.
type MetadataConfig struct {
	// Path is the metadata JSON file. A configured path that cannot
	// be loaded aborts the run.
	Path string `yaml:"path"`
}

// OutputConfig selects the destination the per-course tables are
// written to.
type OutputConfig struct {
	// Kind is the destination implementation: "local" or "s3".
	Kind string `yaml:"kind" validate:"required,oneof=local s3"`

	// Root is the local directory tree root. Required when Kind is
	// "local".
	Root string `yaml:"root"`

	// S3 configures the object store. Required when Kind is "s3".
	S3 *sinks.S3Config `yaml:"s3"`
}
