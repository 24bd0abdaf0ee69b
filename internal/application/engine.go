package application

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

// maxLineBytes bounds a single tracking-log line. Lines beyond this
// are malformed by definition and skipped with the partition intact.
const maxLineBytes = 4 * 1024 * 1024

// EngineParams carries the collaborators an Engine is built from.
// Extractor, LastEvent, Aggregator, Writer, Source, and Destination
// are required; the rest default sensibly.
type EngineParams struct {
	Extractor   ports.EventExtractor
	LastEvent   ports.LastEventReducer
	Aggregator  ports.DistributionAggregator
	Writer      ports.CourseTableWriter
	Source      ports.LogSource
	Destination ports.Destination

	// Metrics may be nil; measurements are then discarded.
	Metrics ports.MetricsCollector

	// Logger may be nil; a no-op logger is used.
	Logger *zap.Logger

	// Workers bounds concurrent partitions and key groups. Zero means
	// one worker per logical CPU.
	Workers int

	// SpoolDir, when set, stages reducer output through tab-separated
	// files instead of passing it in memory, exercising the same
	// interchange format an external file-based shuffle would use.
	SpoolDir string
}

// Engine executes the full pipeline over closed historical partitions
// on a single machine: parallel extraction per partition, an in-memory
// shuffle, parallel keyed reduction, and per-course writes. Each key
// group is reduced by exactly one invocation, matching the contracts
// a distributed substrate provides.
type Engine struct {
	extractor  ports.EventExtractor
	lastEvent  ports.LastEventReducer
	aggregator ports.DistributionAggregator
	writer     ports.CourseTableWriter
	source     ports.LogSource
	dest       ports.Destination
	metrics    ports.MetricsCollector
	log        *zap.Logger
	workers    int
	spoolDir   string
}

// RunSummary reports what one pipeline run processed and produced.
type RunSummary struct {
	Partitions  int
	Lines       int
	Events      int
	AnswerParts int
	Rows        int
	Courses     int
}

// NewEngine creates an engine from params, validating every stage
// before any work starts.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Extractor == nil || params.LastEvent == nil || params.Aggregator == nil {
		return nil, fmt.Errorf("engine requires all three transform stages")
	}
	if params.Writer == nil || params.Source == nil || params.Destination == nil {
		return nil, fmt.Errorf("engine requires a writer, source, and destination")
	}
	for _, stage := range []interface{ Validate() error }{
		params.Extractor, params.LastEvent, params.Aggregator, params.Writer,
	} {
		if err := stage.Validate(); err != nil {
			return nil, fmt.Errorf("stage validation failed: %w", err)
		}
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		extractor:  params.Extractor,
		lastEvent:  params.LastEvent,
		aggregator: params.Aggregator,
		writer:     params.Writer,
		source:     params.Source,
		dest:       params.Destination,
		metrics:    params.Metrics,
		log:        logger,
		workers:    workers,
		spoolDir:   params.SpoolDir,
	}, nil
}

// Run executes the pipeline end to end. Per-record failures only
// reduce coverage; configuration, metadata, and destination failures
// abort the run.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	partitions, err := e.source.Partitions(ctx)
	if err != nil {
		return summary, fmt.Errorf("enumerate partitions: %w", err)
	}
	summary.Partitions = len(partitions)
	e.log.Info("starting answer distribution run",
		zap.Int("partitions", len(partitions)),
		zap.Int("workers", e.workers),
	)

	checks, lines, err := e.extractAll(ctx, partitions)
	if err != nil {
		return summary, err
	}
	summary.Lines = lines
	for _, records := range checks {
		summary.Events += len(records)
	}
	e.log.Info("extraction complete",
		zap.Int("lines", summary.Lines),
		zap.Int("events", summary.Events),
		zap.Int("keys", len(checks)),
	)

	parts, err := e.reduceLastEvents(ctx, checks)
	if err != nil {
		return summary, err
	}
	for _, records := range parts {
		summary.AnswerParts += len(records)
	}
	e.log.Info("last-event reduction complete",
		zap.Int("answer_parts", summary.AnswerParts),
		zap.Int("keys", len(parts)),
	)

	if e.spoolDir != "" {
		parts, err = e.spool(parts)
		if err != nil {
			return summary, err
		}
	}

	courses, err := e.aggregate(ctx, parts)
	if err != nil {
		return summary, err
	}
	for _, rows := range courses {
		summary.Rows += len(rows)
	}
	summary.Courses = len(courses)

	if err := e.writeCourses(ctx, courses); err != nil {
		return summary, err
	}
	if e.metrics != nil {
		e.metrics.RecordGauge("courses_written", float64(summary.Courses), nil)
	}
	e.log.Info("run complete",
		zap.Int("rows", summary.Rows),
		zap.Int("courses", summary.Courses),
	)
	return summary, nil
}

// extractAll maps every partition line through the extractor and
// groups the records by event key, one partition per worker.
func (e *Engine) extractAll(ctx context.Context, partitions []string) (map[domain.EventKey][]domain.ProblemCheckRecord, int, error) {
	var (
		mu      sync.Mutex
		grouped = make(map[domain.EventKey][]domain.ProblemCheckRecord)
		lines   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, partition := range partitions {
		g.Go(func() error {
			local := make(map[domain.EventKey][]domain.ProblemCheckRecord)
			count, err := e.extractPartition(gctx, partition, local)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			lines += count
			for key, records := range local {
				grouped[key] = append(grouped[key], records...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return grouped, lines, nil
}

func (e *Engine) extractPartition(ctx context.Context, partition string, into map[domain.EventKey][]domain.ProblemCheckRecord) (int, error) {
	r, err := e.source.Open(ctx, partition)
	if err != nil {
		return 0, fmt.Errorf("open partition: %w", err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := 0
	for scanner.Scan() {
		lines++
		if rec, ok := e.extractor.Extract(scanner.Bytes()); ok {
			into[rec.Key] = append(into[rec.Key], rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("scan partition %s: %w", partition, err)
	}
	e.log.Debug("partition extracted", zap.String("partition", partition), zap.Int("lines", lines))
	return lines, nil
}

// reduceLastEvents runs the last-event reducer once per event key,
// keys spread across workers, and regroups the output by answer key.
func (e *Engine) reduceLastEvents(ctx context.Context, checks map[domain.EventKey][]domain.ProblemCheckRecord) (map[domain.AnswerKey][]domain.AnswerPartRecord, error) {
	keys := make([]domain.EventKey, 0, len(checks))
	for key := range checks {
		keys = append(keys, key)
	}

	var (
		mu      sync.Mutex
		grouped = make(map[domain.AnswerKey][]domain.AnswerPartRecord)
	)

	g, gctx := errgroup.WithContext(ctx)
	for chunk := range slices.Chunk(keys, chunkSize(len(keys), e.workers)) {
		g.Go(func() error {
			local := make(map[domain.AnswerKey][]domain.AnswerPartRecord)
			for _, key := range chunk {
				records, err := e.lastEvent.Reduce(gctx, key, slices.Values(checks[key]))
				if err != nil {
					return fmt.Errorf("last-event reduce: %w", err)
				}
				for _, rec := range records {
					local[rec.Key] = append(local[rec.Key], rec)
				}
			}
			mu.Lock()
			defer mu.Unlock()
			for key, records := range local {
				grouped[key] = append(grouped[key], records...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return grouped, nil
}

// aggregate runs the distribution aggregator once per answer key and
// groups the resulting rows by course.
func (e *Engine) aggregate(ctx context.Context, parts map[domain.AnswerKey][]domain.AnswerPartRecord) (map[string][]domain.DistributionRow, error) {
	keys := make([]domain.AnswerKey, 0, len(parts))
	for key := range parts {
		keys = append(keys, key)
	}
	// Deterministic row order per course across runs.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CourseID != keys[j].CourseID {
			return keys[i].CourseID < keys[j].CourseID
		}
		return keys[i].PartID < keys[j].PartID
	})

	var (
		mu      sync.Mutex
		courses = make(map[string][]domain.DistributionRow)
	)

	g, gctx := errgroup.WithContext(ctx)
	for chunk := range slices.Chunk(keys, chunkSize(len(keys), e.workers)) {
		g.Go(func() error {
			local := make(map[string][]domain.DistributionRow)
			for _, key := range chunk {
				rows, err := e.aggregator.Reduce(gctx, key, slices.Values(parts[key]))
				if err != nil {
					return fmt.Errorf("distribution reduce: %w", err)
				}
				local[key.CourseID] = append(local[key.CourseID], rows...)
			}
			mu.Lock()
			defer mu.Unlock()
			for course, rows := range local {
				courses[course] = append(courses[course], rows...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return courses, nil
}

// writeCourses serializes each course's rows to its hash-partitioned
// destination path. No two writers target the same path; courses are
// written concurrently.
func (e *Engine) writeCourses(ctx context.Context, courses map[string][]domain.DistributionRow) error {
	ids := make([]string, 0, len(courses))
	for course := range courses {
		ids = append(ids, course)
	}
	sort.Strings(ids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, course := range ids {
		g.Go(func() error {
			path := e.writer.OutputPath(course)
			w, err := e.dest.Create(gctx, path)
			if err != nil {
				return fmt.Errorf("create output for %s: %w", course, err)
			}
			if err := e.writer.Write(gctx, course, courses[course], w); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("close output for %s: %w", course, err)
			}
			e.log.Debug("course written",
				zap.String("course_id", course),
				zap.String("path", path),
				zap.Int("rows", len(courses[course])),
			)
			return nil
		})
	}
	return g.Wait()
}

// spool writes the answer-part records through the staged shuffle
// format and reads them back, regrouped. The round trip guarantees the
// in-memory and file-staged paths agree on the interchange format.
func (e *Engine) spool(parts map[domain.AnswerKey][]domain.AnswerPartRecord) (map[domain.AnswerKey][]domain.AnswerPartRecord, error) {
	if err := os.MkdirAll(e.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	path := filepath.Join(e.spoolDir, "answer_parts.tsv")

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, records := range parts {
		for _, rec := range records {
			line, err := EncodeAnswerPart(rec)
			if err != nil {
				f.Close()
				return nil, err
			}
			if _, err := w.WriteString(line + "\n"); err != nil {
				f.Close()
				return nil, fmt.Errorf("write spool file: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close spool file: %w", err)
	}

	f, err = os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reopen spool file: %w", err)
	}
	defer f.Close()

	grouped := make(map[domain.AnswerKey][]domain.AnswerPartRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		rec, err := DecodeAnswerPart(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("read spool file: %w", err)
		}
		grouped[rec.Key] = append(grouped[rec.Key], rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan spool file: %w", err)
	}
	e.log.Debug("spooled answer parts", zap.String("path", path), zap.Int("keys", len(grouped)))
	return grouped, nil
}

// chunkSize splits n items across the worker count, at least one item
// per chunk.
func chunkSize(n, workers int) int {
	if n == 0 {
		return 1
	}
	size := (n + workers - 1) / workers
	if size < 1 {
		size = 1
	}
	return size
}
