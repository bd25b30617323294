package catalog

import (
	"strings"
)

// DefaultAmbiguousTitles maps a title that exists in several release years
// to the year token that should win when the query is just the bare title.
var DefaultAmbiguousTitles = map[string]string{
	"avatar": "2009",
}

// Index answers case-insensitive title lookups over the catalog.
type Index struct {
	entries   []Entry
	lower     []string
	byID      map[int]int
	ambiguous map[string]string
}

// NewIndex builds an index over entries, which must already carry their
// matrix Index. A nil ambiguous map uses DefaultAmbiguousTitles.
func NewIndex(entries []Entry, ambiguous map[string]string) *Index {
	if ambiguous == nil {
		ambiguous = DefaultAmbiguousTitles
	}
	amb := make(map[string]string, len(ambiguous))
	for title, year := range ambiguous {
		amb[strings.ToLower(strings.TrimSpace(title))] = strings.ToLower(year)
	}

	x := &Index{
		entries:   entries,
		lower:     make([]string, len(entries)),
		byID:      make(map[int]int, len(entries)),
		ambiguous: amb,
	}
	for i, e := range entries {
		x.lower[i] = strings.ToLower(e.Title)
		// First occurrence wins for duplicate ids.
		if _, ok := x.byID[e.MovieID]; !ok {
			x.byID[e.MovieID] = i
		}
	}
	return x
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entry returns the entry at row i.
func (x *Index) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(x.entries) {
		return Entry{}, false
	}
	return x.entries[i], true
}

// ByMovieID returns the first entry with the given external movie id.
func (x *Index) ByMovieID(id int) (Entry, bool) {
	i, ok := x.byID[id]
	if !ok {
		return Entry{}, false
	}
	return x.entries[i], true
}

// Resolve maps a free-text title to a row index.
//
// Titles containing the query (case-insensitive) are candidates. An exact
// title match wins, then the configured year for an ambiguous bare title,
// then the first candidate in catalog order.
func (x *Index) Resolve(query string) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1, false
	}

	matches := x.matches(q, 0)
	if len(matches) == 0 {
		return -1, false
	}

	for _, i := range matches {
		if x.lower[i] == q {
			return i, true
		}
	}

	if year, ok := x.ambiguous[q]; ok {
		for _, i := range matches {
			if strings.Contains(x.lower[i], year) {
				return i, true
			}
		}
	}

	return matches[0], true
}

// Search returns entries whose title contains query, in catalog order.
// limit <= 0 means no limit.
func (x *Index) Search(query string, limit int) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	idx := x.matches(q, limit)
	out := make([]Entry, len(idx))
	for n, i := range idx {
		out[n] = x.entries[i]
	}
	return out
}

func (x *Index) matches(q string, limit int) []int {
	var out []int
	for i, title := range x.lower {
		if strings.Contains(title, q) {
			out = append(out, i)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
