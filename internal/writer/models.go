package writer

import (
	"time"
)

// Page is a rendered result list: recommendations for a title, or the top
// movies of a year or genre selection.
type Page struct {
	Title       string      `yaml:"title"`
	Slug        string      `yaml:"slug"`
	Kind        string      `yaml:"kind"`
	Query       string      `yaml:"query"`
	SourceID    int         `yaml:"sourceTmdbId,omitempty"`
	GeneratedAt time.Time   `yaml:"generatedAt"`
	Movies      []PageMovie `yaml:"movies"`
}

// PageMovie is one movie in a Page.
type PageMovie struct {
	Title       string   `yaml:"title"`
	TMDBID      int      `yaml:"tmdbId"`
	Score       *float32 `yaml:"score,omitempty"`
	CoverImage  string   `yaml:"coverImage"`
	Year        string   `yaml:"year"`
	ReleaseDate string   `yaml:"releaseDate"`
	Runtime     int      `yaml:"runtime"`
	Rating      float64  `yaml:"rating"`
	Genres      []string `yaml:"genres"`
	Description string   `yaml:"description"`
}

// Page kinds.
const (
	KindRecommendations = "recommendations"
	KindYear            = "year"
	KindGenres          = "genres"
)
