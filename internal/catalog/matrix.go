package catalog

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
)

// MatrixVersion is the current on-disk matrix format.
const MatrixVersion = 1

// ErrMatrixNotFound is returned by LoadMatrix when the file does not exist.
var ErrMatrixNotFound = errors.New("similarity matrix not found")

// Matrix is a dense row-major N×N similarity table.
// Scores[i*N+j] is the similarity between catalog entries i and j.
type Matrix struct {
	Version int
	N       int
	Scores  []float32
}

// NewMatrix builds a Matrix from square rows.
func NewMatrix(rows [][]float32) (*Matrix, error) {
	n := len(rows)
	scores := make([]float32, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), n)
		}
		scores = append(scores, row...)
	}
	return &Matrix{Version: MatrixVersion, N: n, Scores: scores}, nil
}

// Validate checks that Scores holds exactly N*N values.
func (m *Matrix) Validate() error {
	if m.N < 0 {
		return fmt.Errorf("%w: negative size %d", ErrDimensionMismatch, m.N)
	}
	if len(m.Scores) != m.N*m.N {
		return fmt.Errorf("%w: %d scores for a %dx%d matrix", ErrDimensionMismatch, len(m.Scores), m.N, m.N)
	}
	return nil
}

// Row returns row i without copying. Callers must not modify it.
func (m *Matrix) Row(i int) []float32 {
	if i < 0 || i >= m.N {
		return nil
	}
	return m.Scores[i*m.N : (i+1)*m.N]
}

// SaveMatrix gob-encodes m to path via a temp file and rename.
func SaveMatrix(path string, m *Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Version == 0 {
		m.Version = MatrixVersion
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("failed to encode matrix: %w", err)
	}
	return writeAtomic(path, buf.Bytes())
}

// LoadMatrix decodes a matrix written by SaveMatrix.
func LoadMatrix(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMatrixNotFound, path)
		}
		return nil, fmt.Errorf("failed to open matrix: %w", err)
	}
	defer f.Close()

	var m Matrix
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode matrix %s: %w", path, err)
	}
	if m.Version != MatrixVersion {
		return nil, fmt.Errorf("unsupported matrix version %d (want %d)", m.Version, MatrixVersion)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
