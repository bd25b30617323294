package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCatalogCSV parses "movie_id,title" rows. A first row whose id column
// is not numeric is treated as a header and skipped.
func ReadCatalogCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var entries []Entry
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog csv: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("catalog csv line %d: want movie_id,title", line)
		}

		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("catalog csv line %d: invalid movie id %q", line, rec[0])
		}
		entries = append(entries, Entry{
			Index:   len(entries),
			MovieID: id,
			Title:   strings.TrimSpace(rec[1]),
		})
	}
	return entries, nil
}

// ReadMatrixText parses a dense matrix, one row per line, values separated
// by commas and/or whitespace. Blank lines are ignored.
func ReadMatrixText(r io.Reader) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 256*1024*1024)

	var rows [][]float32
	line := 0
	for sc.Scan() {
		line++
		fields := strings.FieldsFunc(sc.Text(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) == 0 {
			continue
		}
		row := make([]float32, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("matrix line %d column %d: %w", line, j+1, err)
			}
			row[j] = float32(v)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	return NewMatrix(rows)
}

// Import parses a catalog CSV and matrix text, validates them together and
// writes the artifact pair.
func Import(catalogCSV, matrixText io.Reader, catalogPath, matrixPath string) (int, error) {
	entries, err := ReadCatalogCSV(catalogCSV)
	if err != nil {
		return 0, err
	}
	m, err := ReadMatrixText(matrixText)
	if err != nil {
		return 0, err
	}
	if _, err := NewArtifact(entries, m, nil); err != nil {
		return 0, err
	}

	if err := SaveMatrix(matrixPath, m); err != nil {
		return 0, err
	}
	if err := SaveEntries(catalogPath, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
