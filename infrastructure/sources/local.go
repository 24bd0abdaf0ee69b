// Package sources provides log source implementations for the
// pipeline's input side.
package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.LogSource = (*DirSource)(nil)

// DirSource treats every file matching a glob pattern under a local
// directory as one partition of the tracking log. Partitions are
// closed, append-only files; malformed lines inside a partition never
// abort its processing.
type DirSource struct {
	dir  string
	glob string
}

// NewDirSource creates a source over dir. pattern defaults to "*.log".
func NewDirSource(dir, pattern string) (*DirSource, error) {
	if dir == "" {
		return nil, fmt.Errorf("source directory cannot be empty")
	}
	if pattern == "" {
		pattern = "*.log"
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", dir)
	}
	return &DirSource{dir: dir, glob: pattern}, nil
}

// Partitions lists the matching files in deterministic order.
func (s *DirSource) Partitions(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.glob))
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Open opens one partition for reading.
func (s *DirSource) Open(_ context.Context, partition string) (io.ReadCloser, error) {
	f, err := os.Open(partition)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", partition, err)
	}
	return f, nil
}
