package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// PlaceholderImage is shown when a movie has no poster or could not be fetched.
	PlaceholderImage = "https://via.placeholder.com/500x750/gray/white?text=No+Image+Available"

	// NotAvailable fills unknown year and release date fields.
	NotAvailable = "N/A"

	// NoOverview fills a missing overview.
	NoOverview = "No overview available."

	recordArity = 7
)

// ErrRecordArity is returned when a cached value is not a full record.
var ErrRecordArity = errors.New("cached record has wrong number of fields")

// Record is the enriched metadata for one movie. On disk and in caches it is
// the 7-element JSON array
//
//	[poster_url, year, overview, genres, release_date, runtime, vote_average]
type Record struct {
	PosterURL   string   `json:"poster_url"`
	Year        string   `json:"year"`
	Overview    string   `json:"overview"`
	Genres      []string `json:"genres"`
	ReleaseDate string   `json:"release_date"`
	Runtime     int      `json:"runtime"`
	VoteAverage float64  `json:"vote_average"`
}

// Placeholder returns the record used when metadata is unavailable.
func Placeholder() Record {
	return Record{
		PosterURL:   PlaceholderImage,
		Year:        NotAvailable,
		Overview:    NoOverview,
		Genres:      []string{},
		ReleaseDate: NotAvailable,
		Runtime:     0,
		VoteAverage: 0.0,
	}
}

// IsPlaceholder reports whether r carries no fetched metadata.
func (r Record) IsPlaceholder() bool {
	return r.PosterURL == PlaceholderImage && r.Year == NotAvailable &&
		r.Overview == NoOverview && len(r.Genres) == 0 && r.ReleaseDate == NotAvailable &&
		r.Runtime == 0 && r.VoteAverage == 0
}

// EncodeRecord returns the cache form of r.
func EncodeRecord(r Record) ([]byte, error) {
	genres := r.Genres
	if genres == nil {
		genres = []string{}
	}
	tuple := []any{r.PosterURL, r.Year, r.Overview, genres, r.ReleaseDate, r.Runtime, r.VoteAverage}
	return json.Marshal(tuple)
}

// DecodeRecord parses the cache form. Anything other than a 7-element array
// with the expected field types is rejected.
func DecodeRecord(data []byte) (Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("failed to decode cached record: %w", err)
	}
	if len(raw) != recordArity {
		return Record{}, fmt.Errorf("%w: got %d, want %d", ErrRecordArity, len(raw), recordArity)
	}

	var r Record
	var runtime float64
	targets := []any{&r.PosterURL, &r.Year, &r.Overview, &r.Genres, &r.ReleaseDate, &runtime, &r.VoteAverage}
	for i, target := range targets {
		if bytes.Equal(bytes.TrimSpace(raw[i]), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw[i], target); err != nil {
			return Record{}, fmt.Errorf("failed to decode cached record field %d: %w", i, err)
		}
	}
	r.Runtime = int(runtime)
	if r.Genres == nil {
		r.Genres = []string{}
	}
	return r, nil
}

// recordFromDetails applies the defaults for missing fields.
func recordFromDetails(d *TMDBMovieDetails, posterURL func(string) string) Record {
	r := Record{
		PosterURL:   PlaceholderImage,
		ReleaseDate: NotAvailable,
		Overview:    NoOverview,
		Genres:      make([]string, 0, len(d.Genres)),
	}

	if d.PosterPath != nil && *d.PosterPath != "" {
		r.PosterURL = posterURL(*d.PosterPath)
	}
	if d.ReleaseDate != nil {
		r.ReleaseDate = *d.ReleaseDate
	}
	r.Year = yearOf(r.ReleaseDate)
	if d.Overview != nil {
		r.Overview = *d.Overview
	}
	r.Overview = strings.TrimSpace(strings.ReplaceAll(r.Overview, `"`, "'"))
	for _, g := range d.Genres {
		r.Genres = append(r.Genres, g.Name)
	}
	if d.Runtime != nil {
		r.Runtime = *d.Runtime
	}
	if d.VoteAverage != nil {
		r.VoteAverage = *d.VoteAverage
	}
	return r
}

// yearOf returns the text before the first '-' of a release date of at
// least four characters, else "N/A".
func yearOf(releaseDate string) string {
	if len(releaseDate) < 4 {
		return NotAvailable
	}
	year, _, _ := strings.Cut(releaseDate, "-")
	return year
}
