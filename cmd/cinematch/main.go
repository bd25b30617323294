// Package main provides the cinematch CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/catalog"
	"github.com/marco/cinematch/internal/config"
	"github.com/marco/cinematch/internal/history"
	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metadata"
	"github.com/marco/cinematch/internal/metadata/cache"
	"github.com/marco/cinematch/internal/recommend"
	"github.com/marco/cinematch/internal/service"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath   string
	humanOutput  bool
	noCache      bool
	forceRefresh bool
	verbose      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// SilenceErrors is set, so cobra's own errors (bad flags) are printed here.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cinematch",
	Short: "Content-based movie recommendations with TMDB metadata",
	Long: `cinematch recommends movies similar to a title using a precomputed
similarity matrix, and decorates results with posters and details from TMDB.

Metadata is cached on disk so repeated lookups do not hit the API.
All commands output JSON by default; pass --human for readable text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Keep fetched metadata in memory only")
	rootCmd.PersistentFlags().BoolVar(&forceRefresh, "force-refresh", false, "Re-fetch metadata from TMDB even when cached")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show debug logging")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration and initializes logging, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})
	return cfg
}

// mustLoadArtifact loads the catalog and similarity matrix, exits on error.
func mustLoadArtifact(cfg *config.Config) *catalog.Artifact {
	a, err := catalog.Load(cfg.Data.Catalog, cfg.Data.Matrix, cfg.Data.AmbiguousTitles)
	if err != nil {
		if errors.Is(err, catalog.ErrMatrixNotFound) || errors.Is(err, fs.ErrNotExist) {
			exitWithError(ExitDataError, "similarity artifact not found: %v\n\nRun 'cinematch artifact import' to create it.", err)
		}
		exitWithError(ExitDataError, "loading similarity artifact: %v", err)
	}
	return a
}

// mustOpenCache opens the configured metadata cache, exits on error.
// The caller is responsible for calling Close() on the returned store.
func mustOpenCache(cfg *config.Config) cache.Store {
	backend, path := cfg.Cache.Backend, cfg.Cache.Path
	if noCache {
		backend, path = cache.BackendMemory, ""
	}
	store, err := cache.Open(backend, path)
	if err != nil {
		exitWithError(ExitConfigError, "opening metadata cache: %v", err)
	}
	return store
}

// mustOpenHistory opens the user and history database, exits on error.
func mustOpenHistory(cfg *config.Config) *history.DB {
	db, err := history.OpenDB(cfg.History.Path)
	if err != nil {
		exitWithError(ExitError, "opening history database: %v", err)
	}
	return db
}

// newClient builds the TMDB client with its retry and cache hooks wired to
// the logger.
func newClient(cfg *config.Config) *metadata.Client {
	return metadata.NewClient(metadata.ClientConfig{
		APIKey:         cfg.TMDB.APIKey,
		Language:       cfg.TMDB.Language,
		BaseURL:        cfg.TMDB.BaseURL,
		ImageBaseURL:   cfg.TMDB.ImageBaseURL,
		RateLimitDelay: cfg.RateLimitDelay(),
		Policy:         cfg.RetryPolicy(),
		RetryLogFunc:   logRetry,
	})
}

func newFetcher(cfg *config.Config, client *metadata.Client, store cache.Store) *metadata.Fetcher {
	return metadata.NewFetcher(metadata.FetcherConfig{
		Client:          client,
		Store:           store,
		Policy:          cfg.RetryPolicy(),
		RetryLogFunc:    logRetry,
		CacheLogFunc:    logCache,
		ForceRefresh:    forceRefresh,
		BreakerFailures: cfg.Options.BreakerFailures,
		BreakerTimeout:  time.Duration(cfg.Options.BreakerTimeout) * time.Second,
	})
}

func logRetry(attempt, maxAttempts int, backoff time.Duration, err error) {
	logging.Warn().
		Int("attempt", attempt).
		Int("max_attempts", maxAttempts).
		Dur("backoff", backoff).
		Err(err).
		Msg("retrying TMDB request")
}

func logCache(operation, key string, hit bool) {
	logging.Debug().Str("op", operation).Str("key", key).Bool("hit", hit).Msg("metadata cache")
}

// app bundles everything a command needs to call the service.
type app struct {
	cfg     *config.Config
	holder  *catalog.Holder
	store   cache.Store
	client  *metadata.Client
	fetcher *metadata.Fetcher
	history *history.DB
	svc     *service.Service
	close   func()
}

// mustOpenApp loads config, artifact, cache and history and builds the
// service. Call Close when done; exitWithError closes it as well.
func mustOpenApp() *app {
	cfg := mustLoadConfig()
	a := &app{cfg: cfg}
	a.holder = catalog.NewHolder(mustLoadArtifact(cfg))
	a.close = closeOnExit(a.closeStores)
	a.store = mustOpenCache(cfg)
	a.client = newClient(cfg)
	a.fetcher = newFetcher(cfg, a.client, a.store)
	a.history = mustOpenHistory(cfg)
	a.svc = service.New(service.Config{
		Artifacts:     a.holder,
		Engine:        recommend.New(cfg.Options.Recommendations),
		Fetcher:       a.fetcher,
		Discoverer:    a.client,
		History:       a.history,
		DiscoverCount: cfg.Options.DiscoverCount,
	})
	return a
}

func (a *app) Close() {
	a.close()
}

func (a *app) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("closing metadata cache")
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logging.Error().Err(err).Msg("closing history database")
		}
	}
}
