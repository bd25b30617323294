// Package recommend ranks catalog entries by precomputed similarity.
package recommend

import (
	"sort"

	"github.com/marco/cinematch/internal/catalog"
)

// DefaultK is the number of recommendations returned when none is configured.
const DefaultK = 5

// Recommendation is one ranked neighbour.
type Recommendation struct {
	Index   int     `json:"index"`
	MovieID int     `json:"movie_id"`
	Title   string  `json:"title"`
	Score   float32 `json:"score"`
}

// Engine returns the top-K most similar entries for a row.
type Engine struct {
	k int
}

// New creates an engine returning k results; k <= 0 uses DefaultK.
func New(k int) *Engine {
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{k: k}
}

// K returns the configured result count.
func (e *Engine) K() int {
	return e.k
}

// Recommend returns up to K entries most similar to row index, highest score
// first. The row itself is always excluded, even when another entry ties
// its self-score. Equal scores keep catalog order. An index outside the
// artifact yields an empty result.
func (e *Engine) Recommend(a *catalog.Artifact, index int) []Recommendation {
	row := a.Matrix.Row(index)
	if row == nil {
		return []Recommendation{}
	}

	cols := make([]int, 0, len(row)-1)
	for j := range row {
		if j != index {
			cols = append(cols, j)
		}
	}
	sort.SliceStable(cols, func(x, y int) bool {
		return row[cols[x]] > row[cols[y]]
	})

	if len(cols) > e.k {
		cols = cols[:e.k]
	}

	out := make([]Recommendation, 0, len(cols))
	for _, j := range cols {
		entry, _ := a.Index.Entry(j)
		out = append(out, Recommendation{
			Index:   j,
			MovieID: entry.MovieID,
			Title:   entry.Title,
			Score:   row[j],
		})
	}
	return out
}

// RecommendTitle resolves title and recommends for it. ok is false when the
// title does not match any entry.
func (e *Engine) RecommendTitle(a *catalog.Artifact, title string) (source catalog.Entry, recs []Recommendation, ok bool) {
	i, found := a.Index.Resolve(title)
	if !found {
		return catalog.Entry{}, []Recommendation{}, false
	}
	source, _ = a.Index.Entry(i)
	return source, e.Recommend(a, i), true
}
