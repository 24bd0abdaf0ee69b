// Command answerdist runs the answer-distribution batch pipeline:
// it reads tracking logs, reduces each (course, problem, student) to
// its most recent problem-check event, aggregates answer counts, and
// writes one CSV report per course.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ahrav/answerdist/infrastructure/middleware"
	"github.com/ahrav/answerdist/internal/application"
)

func main() {
	var (
		configPath = flag.String("config", "answerdist.yaml", "Path to pipeline configuration file")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	logger, err := buildLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, logger); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := application.NewConfigLoader().LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics := middleware.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	engine, err := application.BuildEngine(config, logger, metrics)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	summary, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("pipeline complete",
		zap.Int("partitions", summary.Partitions),
		zap.Int("lines", summary.Lines),
		zap.Int("events", summary.Events),
		zap.Int("answer_parts", summary.AnswerParts),
		zap.Int("rows", summary.Rows),
		zap.Int("courses", summary.Courses),
	)
	return nil
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
