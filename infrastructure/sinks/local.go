package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.Destination = (*LocalDestination)(nil)

// LocalDestination writes output objects into a directory tree rooted
// at a local filesystem path, creating partition directories on
// demand.
type LocalDestination struct {
	root string
}

// NewLocalDestination creates a destination rooted at root. The root
// directory is created if it does not exist.
func NewLocalDestination(root string) (*LocalDestination, error) {
	if root == "" {
		return nil, fmt.Errorf("destination root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create destination root: %w", err)
	}
	return &LocalDestination{root: root}, nil
}

// Create opens the object at the slash-separated path for writing,
// truncating any previous run's output.
func (d *LocalDestination) Create(_ context.Context, path string) (io.WriteCloser, error) {
	full := filepath.Join(d.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}
