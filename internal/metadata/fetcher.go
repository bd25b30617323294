package metadata

import (
	"context"
	"errors"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metadata/cache"
	"github.com/marco/cinematch/internal/metrics"
	"github.com/marco/cinematch/internal/retry"
)

// CacheLogFunc is a callback for logging cache operations
type CacheLogFunc func(operation string, key string, hit bool)

// DetailsClient is the part of the TMDB client the fetcher needs. Wait is
// called before every details request.
type DetailsClient interface {
	Wait(ctx context.Context) error
	GetMovieDetails(ctx context.Context, tmdbID int) (*TMDBMovieDetails, error)
	PosterURL(posterPath string) string
}

// FetcherConfig holds configuration for the metadata fetcher
type FetcherConfig struct {
	Client       DetailsClient
	Store        cache.Store
	Policy       retry.Policy
	RetryLogFunc RetryLogFunc
	CacheLogFunc CacheLogFunc
	ForceRefresh bool // Skip cache reads; results are still written back

	// BreakerFailures is the number of consecutive failed fetches that
	// opens the circuit. Zero uses 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open. Zero uses 1 minute.
	BreakerTimeout time.Duration
}

// Fetcher resolves movie ids to metadata records, reading through a
// persistent cache. It never returns an error: failures yield Placeholder.
type Fetcher struct {
	client       DetailsClient
	store        cache.Store
	policy       retry.Policy
	retryLogFunc RetryLogFunc
	cacheLogFunc CacheLogFunc
	forceRefresh bool
	breaker      *gobreaker.CircuitBreaker[*TMDBMovieDetails]
}

const breakerName = "tmdb-details"

// NewFetcher creates a fetcher. A nil Store disables caching.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = time.Minute
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	threshold := cfg.BreakerFailures

	breaker := gobreaker.NewCircuitBreaker[*TMDBMovieDetails](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Unknown movies and local waits say nothing about TMDB's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrRateLimitWait) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Fetcher{
		client:       cfg.Client,
		store:        cfg.Store,
		policy:       cfg.Policy,
		retryLogFunc: cfg.RetryLogFunc,
		cacheLogFunc: cfg.CacheLogFunc,
		forceRefresh: cfg.ForceRefresh,
		breaker:      breaker,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// FetchMetadata returns metadata for movieID. Non-positive ids return the
// placeholder without any lookup. A valid cache entry is returned as
// stored. Otherwise TMDB is asked with bounded retries; a success is
// written back to the cache, and a failure returns the placeholder.
func (f *Fetcher) FetchMetadata(ctx context.Context, movieID int) Record {
	if movieID <= 0 {
		metrics.Placeholders.WithLabelValues("invalid_id").Inc()
		return Placeholder()
	}

	key := strconv.Itoa(movieID)
	if r, ok := f.getFromCache(key); ok {
		return r
	}

	details, err := f.breaker.Execute(func() (*TMDBMovieDetails, error) {
		var details *TMDBMovieDetails
		err := retry.DoPaced(ctx, f.policy, f.client.Wait, func(ctx context.Context) error {
			d, err := f.client.GetMovieDetails(ctx, movieID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return retry.Permanent(err)
				}
				return err
			}
			details = d
			return nil
		}, f.retryLogFunc)
		return details, err
	})
	if err != nil {
		reason := "exhausted"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "circuit_open"
		case errors.Is(err, ErrNotFound):
			reason = "not_found"
		case errors.Is(err, ErrRateLimitWait), ctx.Err() != nil:
			reason = "cancelled"
		case retry.IsRateLimited(err):
			reason = "rate_limited"
		}
		metrics.Placeholders.WithLabelValues(reason).Inc()
		logging.Error().Err(err).Int("movie_id", movieID).Str("reason", reason).
			Msg("failed to fetch movie metadata, using placeholder")
		return Placeholder()
	}

	r := recordFromDetails(details, f.client.PosterURL)
	f.setToCache(key, r)
	return r
}

// FetchAll fetches ids one after another, preserving order. Once ctx is
// done the remaining ids get placeholders without any lookup.
func (f *Fetcher) FetchAll(ctx context.Context, ids []int) []Record {
	out := make([]Record, len(ids))
	for i, id := range ids {
		if ctx.Err() != nil {
			out[i] = Placeholder()
			continue
		}
		out[i] = f.FetchMetadata(ctx, id)
	}
	return out
}

// Cached reports whether a valid record for movieID is in the cache.
func (f *Fetcher) Cached(movieID int) bool {
	if f.store == nil || movieID <= 0 {
		return false
	}
	data, ok := f.store.Get(strconv.Itoa(movieID))
	if !ok {
		return false
	}
	_, err := DecodeRecord(data)
	return err == nil
}

// getFromCache retrieves a record from cache if available and not force-refreshing
func (f *Fetcher) getFromCache(key string) (Record, bool) {
	if f.store == nil || f.forceRefresh {
		return Record{}, false
	}
	data, found := f.store.Get(key)
	if found {
		r, err := DecodeRecord(data)
		if err != nil {
			// Legacy short tuples and garbage are refetched.
			logging.Debug().Str("key", key).Err(err).Msg("ignoring invalid cache entry")
		} else {
			metrics.CacheHits.Inc()
			if f.cacheLogFunc != nil {
				f.cacheLogFunc("get", key, true)
			}
			return r, true
		}
	}
	metrics.CacheMisses.Inc()
	if f.cacheLogFunc != nil {
		f.cacheLogFunc("get", key, false)
	}
	return Record{}, false
}

// setToCache stores a record if caching is enabled. Failures are logged only.
func (f *Fetcher) setToCache(key string, r Record) {
	if f.store == nil {
		return
	}
	data, err := EncodeRecord(r)
	if err == nil {
		err = f.store.Set(key, data)
	}
	if err != nil {
		metrics.CacheWriteErrors.Inc()
		logging.Error().Err(err).Str("key", key).Msg("failed to save metadata cache")
		if f.cacheLogFunc != nil {
			f.cacheLogFunc("set_error", key, false)
		}
		return
	}
	metrics.CacheEntries.Set(float64(f.store.Len()))
	if f.cacheLogFunc != nil {
		f.cacheLogFunc("set", key, true)
	}
}
