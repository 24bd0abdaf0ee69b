package application

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrav/answerdist/infrastructure/metadata"
	"github.com/ahrav/answerdist/infrastructure/sinks"
	"github.com/ahrav/answerdist/infrastructure/sources"
	"github.com/ahrav/answerdist/infrastructure/stages"
	"github.com/ahrav/answerdist/internal/ports"
)

// BuildEngine assembles a ready-to-run engine from a validated
// pipeline configuration. A configured metadata source that fails to
// load is fatal; the run never starts without its index.
func BuildEngine(config *PipelineConfig, logger *zap.Logger, metrics ports.MetricsCollector) (*Engine, error) {
	index := metadata.Empty()
	if config.Metadata.Path != "" {
		loaded, err := metadata.LoadFile(config.Metadata.Path)
		if err != nil {
			return nil, fmt.Errorf("load answer metadata: %w", err)
		}
		index = loaded
	}

	extractor, err := stages.NewEventExtractor("problem_check_extractor", metrics)
	if err != nil {
		return nil, err
	}
	lastEvent, err := stages.NewLastEventReducer("last_problem_check", metrics)
	if err != nil {
		return nil, err
	}
	aggregator, err := stages.NewDistributionAggregator("answer_distribution", config.Aggregator, index, metrics)
	if err != nil {
		return nil, err
	}
	writer, err := sinks.NewCSVCourseWriter("course_table_writer", config.Table, metrics)
	if err != nil {
		return nil, err
	}

	source, err := sources.NewDirSource(config.Source.Dir, config.Source.Glob)
	if err != nil {
		return nil, err
	}

	var dest ports.Destination
	switch config.Output.Kind {
	case "s3":
		dest, err = sinks.NewS3Destination(*config.Output.S3)
	default:
		dest, err = sinks.NewLocalDestination(config.Output.Root)
	}
	if err != nil {
		return nil, err
	}

	return NewEngine(EngineParams{
		Extractor:   extractor,
		LastEvent:   lastEvent,
		Aggregator:  aggregator,
		Writer:      writer,
		Source:      source,
		Destination: dest,
		Metrics:     metrics,
		Logger:      logger,
		Workers:     config.Workers,
		SpoolDir:    config.SpoolDir,
	})
}
