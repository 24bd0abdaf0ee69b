package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ahrav/answerdist/internal/testutils"
)

func main() {
	var (
		outputDir = flag.String("output", "testdata/tracking_logs", "Output directory for generated logs")
		files     = flag.Int("files", 4, "Number of log files to generate")
		events    = flag.Int("events", 1000, "Number of problem_check events per file")
		courses   = flag.Int("courses", 3, "Number of distinct courses")
		students  = flag.Int("students", 50, "Number of distinct students")
		seed      = flag.Int64("seed", 1, "Random seed")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	opts := testutils.DefaultGeneratorOptions()
	opts.Events = *events
	opts.Courses = *courses
	opts.Students = *students

	total := 0
	for i := 0; i < *files; i++ {
		opts.Seed = *seed + int64(i)
		path := filepath.Join(*outputDir, fmt.Sprintf("tracking.log-%04d.log", i))
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", path, err)
		}
		lines, err := testutils.GenerateTrackingLog(f, opts)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		total += lines
	}

	metaPath := filepath.Join(*outputDir, "course_metadata.json")
	meta, err := testutils.SampleMetadata(opts.ProblemsPerCourse)
	if err != nil {
		log.Fatalf("Failed to build metadata: %v", err)
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", metaPath, err)
	}

	fmt.Printf("Generated tracking logs:\n")
	fmt.Printf("- Directory: %s\n", *outputDir)
	fmt.Printf("- Files: %d\n", *files)
	fmt.Printf("- Total lines: %d\n", total)
	fmt.Printf("- Metadata: %s\n", metaPath)
}
