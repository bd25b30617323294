// Package service wires the title index, the recommendation engine, the
// metadata fetcher and the history store into the operations the CLI and
// HTTP API expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marco/cinematch/internal/catalog"
	"github.com/marco/cinematch/internal/history"
	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metadata"
	"github.com/marco/cinematch/internal/metrics"
	"github.com/marco/cinematch/internal/recommend"
)

// DefaultDiscoverCount is how many discover results are enriched.
const DefaultDiscoverCount = 5

// ErrNoGenres is returned when none of the requested genre names is known.
var ErrNoGenres = errors.New("no known genres selected")

// ArtifactSource returns the artifact to serve a request from.
type ArtifactSource interface {
	Current() *catalog.Artifact
}

// MetadataFetcher resolves movie ids to metadata. FetchAll returns one
// record per id in the same order.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, movieID int) metadata.Record
	FetchAll(ctx context.Context, movieIDs []int) []metadata.Record
}

// Discoverer is the TMDB surface used for browsing by year or genre.
type Discoverer interface {
	Discover(ctx context.Context, q metadata.DiscoverQuery) ([]metadata.TMDBMovie, error)
	Genres(ctx context.Context) (map[string]int, error)
	PosterURL(posterPath string) string
}

// Config holds the service's collaborators.
type Config struct {
	Artifacts     ArtifactSource
	Engine        *recommend.Engine
	Fetcher       MetadataFetcher
	Discoverer    Discoverer
	History       history.History // optional
	DiscoverCount int
}

// Service is safe for concurrent use if its collaborators are.
type Service struct {
	artifacts     ArtifactSource
	engine        *recommend.Engine
	fetcher       MetadataFetcher
	discoverer    Discoverer
	history       history.History
	discoverCount int
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Engine == nil {
		cfg.Engine = recommend.New(recommend.DefaultK)
	}
	if cfg.DiscoverCount <= 0 {
		cfg.DiscoverCount = DefaultDiscoverCount
	}
	return &Service{
		artifacts:     cfg.Artifacts,
		engine:        cfg.Engine,
		fetcher:       cfg.Fetcher,
		discoverer:    cfg.Discoverer,
		history:       cfg.History,
		discoverCount: cfg.DiscoverCount,
	}
}

// Request is one recommendation lookup. Username may be empty, in which
// case nothing is recorded.
type Request struct {
	Username string
	Title    string
}

// Item is one movie in a result list with its metadata.
type Item struct {
	Title    string          `json:"title"`
	MovieID  int             `json:"movie_id"`
	Score    *float32        `json:"score,omitempty"`
	Metadata metadata.Record `json:"metadata"`
}

// Result is the outcome of a recommendation lookup. Items is empty, never
// nil, when the title was not found.
type Result struct {
	Query    string         `json:"query"`
	Source   *catalog.Entry `json:"source,omitempty"`
	Items    []Item         `json:"items"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Found reports whether the query matched a catalog entry.
func (r *Result) Found() bool {
	return r.Source != nil
}

// Recommend resolves req.Title, ranks its neighbours and enriches each with
// metadata. A successful lookup is added to the user's history.
func (s *Service) Recommend(ctx context.Context, req Request) *Result {
	res := &Result{Query: req.Title, Items: []Item{}}

	a := s.artifacts.Current()
	source, recs, ok := s.engine.RecommendTitle(a, req.Title)
	if !ok {
		metrics.Recommendations.WithLabelValues("not_found").Inc()
		logging.Info().Str("query", req.Title).Msg("no catalog match")
		return res
	}
	res.Source = &source

	ids := make([]int, len(recs))
	for i, rec := range recs {
		ids[i] = rec.MovieID
	}
	records := s.fetcher.FetchAll(ctx, ids)
	for i, rec := range recs {
		score := rec.Score
		res.Items = append(res.Items, Item{
			Title:    rec.Title,
			MovieID:  rec.MovieID,
			Score:    &score,
			Metadata: records[i],
		})
	}
	if len(res.Items) == 0 {
		metrics.Recommendations.WithLabelValues("empty").Inc()
		return res
	}
	metrics.Recommendations.WithLabelValues("ok").Inc()

	if w := s.recordSearch(ctx, req.Username, source); w != "" {
		res.Warnings = append(res.Warnings, w)
	}
	return res
}

// recordSearch returns a warning instead of failing the lookup.
func (s *Service) recordSearch(ctx context.Context, username string, source catalog.Entry) string {
	if s.history == nil || username == "" {
		return ""
	}
	if source.MovieID <= 0 {
		return fmt.Sprintf("could not resolve a movie id for %q, so it was not saved to history", source.Title)
	}
	if err := s.history.RecordSearch(ctx, username, source.MovieID, source.Title); err != nil {
		logging.Error().Err(err).Str("user", username).Msg("failed to record search")
		return "search could not be saved to history"
	}
	return ""
}

// CatalogSize returns the number of titles currently served.
func (s *Service) CatalogSize() int {
	return s.artifacts.Current().Len()
}

// Search lists catalog entries whose title contains query.
func (s *Service) Search(query string, limit int) []catalog.Entry {
	out := s.artifacts.Current().Index.Search(query, limit)
	if out == nil {
		return []catalog.Entry{}
	}
	return out
}

// Details returns metadata for one movie id. Title is filled from the
// catalog when the movie is in it.
func (s *Service) Details(ctx context.Context, movieID int) Item {
	item := Item{MovieID: movieID, Metadata: s.fetcher.FetchMetadata(ctx, movieID)}
	if e, ok := s.artifacts.Current().Index.ByMovieID(movieID); ok {
		item.Title = e.Title
	}
	return item
}

// TopByYear returns the most popular movies released in year.
func (s *Service) TopByYear(ctx context.Context, year int) ([]Item, error) {
	if year <= 0 {
		return nil, fmt.Errorf("invalid year %d", year)
	}
	return s.discover(ctx, metadata.DiscoverQuery{Year: year})
}

// TopByGenres returns the most popular movies having all of genreIDs. An
// empty list yields an empty result without calling TMDB.
func (s *Service) TopByGenres(ctx context.Context, genreIDs []int) ([]Item, error) {
	if len(genreIDs) == 0 {
		return []Item{}, nil
	}
	return s.discover(ctx, metadata.DiscoverQuery{GenreIDs: genreIDs})
}

// TopByGenreNames maps genre names to ids, records each name in the user's
// genre history and runs TopByGenres. Unknown names are reported as
// warnings.
func (s *Service) TopByGenreNames(ctx context.Context, username string, names []string) ([]Item, []string, error) {
	genres, err := s.discoverer.Genres(ctx)
	if err != nil {
		return nil, nil, err
	}

	var ids []int
	var warnings []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := lookupGenre(genres, name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown genre %q", name))
			continue
		}
		ids = append(ids, id)
		if s.history != nil && username != "" {
			if err := s.history.RecordGenreSearch(ctx, username, canonicalGenre(genres, name)); err != nil {
				logging.Error().Err(err).Str("user", username).Msg("failed to record genre search")
				warnings = append(warnings, "genre search could not be saved to history")
			}
		}
	}
	if len(ids) == 0 {
		return []Item{}, warnings, ErrNoGenres
	}

	items, err := s.TopByGenres(ctx, ids)
	return items, warnings, err
}

func (s *Service) discover(ctx context.Context, q metadata.DiscoverQuery) ([]Item, error) {
	movies, err := s.discoverer.Discover(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(movies) > s.discoverCount {
		movies = movies[:s.discoverCount]
	}

	ids := make([]int, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
	}
	records := s.fetcher.FetchAll(ctx, ids)

	items := make([]Item, 0, len(movies))
	for i, m := range movies {
		title := m.Title
		if title == "" {
			title = "Untitled"
		}
		items = append(items, Item{
			Title:    title,
			MovieID:  m.ID,
			Metadata: records[i],
		})
	}
	return items, nil
}

// Genres returns the known genre names and ids.
func (s *Service) Genres(ctx context.Context) (map[string]int, error) {
	return s.discoverer.Genres(ctx)
}

// Representative is the poster shown for a genre.
type Representative struct {
	Genre     string `json:"genre"`
	PosterURL string `json:"poster_url"`
	Year      string `json:"year"`
}

// GenreRepresentative returns the poster and year of the most popular movie
// in a genre. Any failure yields the placeholder poster and "N/A".
func (s *Service) GenreRepresentative(ctx context.Context, name string) Representative {
	rep := Representative{Genre: name, PosterURL: metadata.PlaceholderImage, Year: metadata.NotAvailable}

	genres, err := s.discoverer.Genres(ctx)
	if err != nil {
		logging.Error().Err(err).Str("genre", name).Msg("failed to fetch genres")
		return rep
	}
	id, ok := lookupGenre(genres, name)
	if !ok {
		return rep
	}
	movies, err := s.discoverer.Discover(ctx, metadata.DiscoverQuery{GenreIDs: []int{id}})
	if err != nil {
		logging.Error().Err(err).Str("genre", name).Msg("failed to fetch genre poster")
		return rep
	}
	if len(movies) == 0 {
		return rep
	}

	top := movies[0]
	rep.PosterURL = s.discoverer.PosterURL(top.PosterPath)
	if top.ReleaseDate != "" {
		rep.Year, _, _ = strings.Cut(top.ReleaseDate, "-")
	}
	return rep
}

// RecentItem is a history row with metadata for display.
type RecentItem struct {
	history.Search
	Metadata metadata.Record `json:"metadata"`
}

// RecentSearches returns the user's latest movie searches with metadata.
func (s *Service) RecentSearches(ctx context.Context, username string, limit int) ([]RecentItem, error) {
	if s.history == nil {
		return []RecentItem{}, nil
	}
	rows, err := s.history.RecentSearches(ctx, username, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.MovieID
	}
	records := s.fetcher.FetchAll(ctx, ids)

	out := make([]RecentItem, 0, len(rows))
	for i, r := range rows {
		out = append(out, RecentItem{Search: r, Metadata: records[i]})
	}
	return out, nil
}

// RecentGenre is a genre history row with its representative poster.
type RecentGenre struct {
	history.GenreSearch
	PosterURL string `json:"poster_url"`
	Year      string `json:"year"`
}

// RecentGenreSearches returns the user's latest genre searches with a
// representative poster each.
func (s *Service) RecentGenreSearches(ctx context.Context, username string, limit int) ([]RecentGenre, error) {
	if s.history == nil {
		return []RecentGenre{}, nil
	}
	rows, err := s.history.RecentGenreSearches(ctx, username, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RecentGenre, 0, len(rows))
	for _, r := range rows {
		rep := s.GenreRepresentative(ctx, r.Genre)
		out = append(out, RecentGenre{GenreSearch: r, PosterURL: rep.PosterURL, Year: rep.Year})
	}
	return out, nil
}

// lookupGenre matches a genre name case-insensitively.
func lookupGenre(genres map[string]int, name string) (int, bool) {
	if id, ok := genres[name]; ok {
		return id, true
	}
	for g, id := range genres {
		if strings.EqualFold(g, name) {
			return id, true
		}
	}
	return 0, false
}

func canonicalGenre(genres map[string]int, name string) string {
	if _, ok := genres[name]; ok {
		return name
	}
	for g := range genres {
		if strings.EqualFold(g, name) {
			return g
		}
	}
	return name
}
