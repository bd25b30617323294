// Package catalog loads the precomputed similarity artifact: the movie
// catalog (id, title) and the dense N×N similarity matrix that goes with it.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// ErrDimensionMismatch is returned when the catalog and matrix sizes disagree.
var ErrDimensionMismatch = errors.New("catalog and matrix dimensions do not match")

// Entry is one movie in the catalog. Index is its row in the similarity
// matrix and is assigned from the position in the catalog file.
type Entry struct {
	Index   int    `json:"-"`
	MovieID int    `json:"movie_id"`
	Title   string `json:"title"`
}

// Artifact is an immutable catalog+matrix pair. It is safe for concurrent
// readers; reloads build a new Artifact instead of mutating this one.
type Artifact struct {
	Index    *Index
	Matrix   *Matrix
	LoadedAt time.Time
}

// NewArtifact validates entries against m and builds the title index.
func NewArtifact(entries []Entry, m *Matrix, ambiguous map[string]string) (*Artifact, error) {
	if m == nil {
		return nil, fmt.Errorf("matrix is nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(entries) != m.N {
		return nil, fmt.Errorf("%w: %d catalog entries, matrix is %dx%d", ErrDimensionMismatch, len(entries), m.N, m.N)
	}

	indexed := make([]Entry, len(entries))
	for i, e := range entries {
		e.Index = i
		indexed[i] = e
	}

	return &Artifact{
		Index:    NewIndex(indexed, ambiguous),
		Matrix:   m,
		LoadedAt: time.Now(),
	}, nil
}

// Load reads the catalog JSON and gob matrix from disk.
func Load(catalogPath, matrixPath string, ambiguous map[string]string) (*Artifact, error) {
	entries, err := LoadEntries(catalogPath)
	if err != nil {
		return nil, err
	}
	m, err := LoadMatrix(matrixPath)
	if err != nil {
		return nil, err
	}
	return NewArtifact(entries, m, ambiguous)
}

// Len returns the number of movies.
func (a *Artifact) Len() int {
	return a.Index.Len()
}

// LoadEntries reads a catalog file: a JSON array of {"movie_id", "title"}.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for i := range entries {
		entries[i].Index = i
	}
	return entries, nil
}

// SaveEntries writes entries as a catalog file, replacing path atomically.
func SaveEntries(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
