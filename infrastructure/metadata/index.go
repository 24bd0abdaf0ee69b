// Package metadata loads and serves the answer-part metadata source:
// a single JSON object keyed by answer-part id, supplied externally
// before an aggregation run begins.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.AnswerMetadata = (*Index)(nil)

// ErrUnavailable indicates the metadata source could not be read or
// parsed. This is fatal for a run: aggregation cannot proceed without
// a best-effort metadata index, even though individual lookups are
// optional.
var ErrUnavailable = errors.New("answer metadata source unavailable")

// Index is the immutable answer-part metadata lookup for one
// aggregation run. It is never mutated after Load and is safe for
// concurrent use without locking.
type Index struct {
	entries map[string]domain.MetadataEntry
}

// Load reads the metadata source from r. A source that cannot be
// parsed returns an error wrapping ErrUnavailable.
func Load(r io.Reader) (*Index, error) {
	var entries map[string]domain.MetadataEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if entries == nil {
		entries = make(map[string]domain.MetadataEntry)
	}
	return &Index{entries: entries}, nil
}

// LoadFile reads the metadata source from the file at path.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	return Load(f)
}

// Empty returns an index with no entries, for runs where no metadata
// source is configured.
func Empty() *Index {
	return &Index{entries: make(map[string]domain.MetadataEntry)}
}

// Lookup returns the entry for the given answer-part id. ok is false
// when the source has no entry for it, which is a normal state.
func (i *Index) Lookup(id string) (domain.MetadataEntry, bool) {
	entry, ok := i.entries[id]
	return entry, ok
}

// Len returns the number of entries loaded from the source.
func (i *Index) Len() int { return len(i.entries) }
