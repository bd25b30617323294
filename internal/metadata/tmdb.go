package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/marco/cinematch/internal/metrics"
	"github.com/marco/cinematch/internal/retry"
)

const (
	DefaultAPIBaseURL   = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

	defaultLanguage       = "en-US"
	defaultRateLimitDelay = 750 * time.Millisecond
	genreCacheTTL         = 24 * time.Hour
	genreCacheKey         = "genres"
)

// ErrNotFound is returned when TMDB has no movie with the requested id.
var ErrNotFound = errors.New("movie not found")

// ErrRateLimitWait is returned when the caller's context ends before the
// rate limiter lets a request through. No request was sent.
var ErrRateLimitWait = errors.New("rate limiter wait")

// StatusError is a non-200 response from TMDB.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("TMDB API error (status %d): %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code to retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Unwrap maps 404 to ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// RetryLogFunc is a callback for logging retry attempts
type RetryLogFunc = retry.LogFunc

// ClientConfig holds configuration for the TMDB client
type ClientConfig struct {
	APIKey         string
	Language       string
	BaseURL        string
	ImageBaseURL   string
	RateLimitDelay time.Duration // Minimum spacing between outgoing requests; negative disables
	Policy         retry.Policy
	RetryLogFunc   RetryLogFunc
	// Transport is the base round tripper under the retrying transport.
	// Nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Client represents a TMDB API client. It is safe for concurrent use; the
// rate limiter serialises outgoing requests.
type Client struct {
	apiKey       string
	language     string
	baseURL      string
	imageBaseURL string
	httpClient   *http.Client
	limiter      *rate.Limiter
	genres       *expirable.LRU[string, map[string]int]
}

// NewClient creates a new TMDB API client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = DefaultImageBaseURL
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = defaultRateLimitDelay
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}

	limit := rate.Inf
	if cfg.RateLimitDelay > 0 {
		limit = rate.Every(cfg.RateLimitDelay)
	}

	return &Client{
		apiKey:       cfg.APIKey,
		language:     cfg.Language,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		imageBaseURL: cfg.ImageBaseURL,
		httpClient: &http.Client{
			Transport: retry.NewTransport(cfg.Transport, cfg.Policy, cfg.RetryLogFunc),
		},
		limiter: rate.NewLimiter(limit, 1),
		genres:  expirable.NewLRU[string, map[string]int](1, nil, genreCacheTTL),
	}
}

// PosterURL builds a full image URL, or the placeholder for an empty path.
func (c *Client) PosterURL(posterPath string) string {
	if posterPath == "" {
		return PlaceholderImage
	}
	return c.imageBaseURL + posterPath
}

// Wait blocks until the rate limiter allows one more request. ctx should be
// the caller's context, not one bounded by a per-attempt timeout.
func (c *Client) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimitWait, err)
	}
	return nil
}

// get performs a GET and decodes a 200 body into out. Pacing is up to the
// caller.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.TMDBRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TMDBRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TMDBRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	metrics.TMDBRequests.WithLabelValues(endpoint, "ok").Inc()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// GetMovieDetails fetches detailed information about a movie. It does not
// wait on the rate limiter; callers pace it with Wait.
func (c *Client) GetMovieDetails(ctx context.Context, tmdbID int) (*TMDBMovieDetails, error) {
	var details TMDBMovieDetails
	if err := c.get(ctx, "movie", fmt.Sprintf("/movie/%d", tmdbID), nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get movie details for %d: %w", tmdbID, err)
	}
	return &details, nil
}

// Discover returns the first page of movies matching q, most popular first.
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) ([]TMDBMovie, error) {
	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("page", "1")
	switch {
	case q.Year > 0:
		params.Set("primary_release_year", strconv.Itoa(q.Year))
	case len(q.GenreIDs) > 0:
		ids := make([]string, len(q.GenreIDs))
		for i, id := range q.GenreIDs {
			ids[i] = strconv.Itoa(id)
		}
		params.Set("with_genres", strings.Join(ids, ","))
	default:
		return nil, fmt.Errorf("discover query needs a year or genres")
	}

	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	var resp TMDBDiscoverResponse
	if err := c.get(ctx, "discover", "/discover/movie", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to discover movies: %w", err)
	}
	return resp.Results, nil
}

// Genres returns the genre name to id mapping. The list is cached in
// memory for 24 hours.
func (c *Client) Genres(ctx context.Context) (map[string]int, error) {
	if cached, ok := c.genres.Get(genreCacheKey); ok {
		return cached, nil
	}

	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	var resp TMDBGenreListResponse
	if err := c.get(ctx, "genres", "/genre/movie/list", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch genres: %w", err)
	}

	genres := make(map[string]int, len(resp.Genres))
	for _, g := range resp.Genres {
		genres[g.Name] = g.ID
	}
	c.genres.Add(genreCacheKey, genres)
	return genres, nil
}
