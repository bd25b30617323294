package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/warmer"
)

var (
	warmBatch   int
	warmWorkers int
)

func init() {
	cacheWarmCmd.Flags().IntVar(&warmBatch, "batch", 0, "Maximum movies to fetch (default from config warm_batch)")
	cacheWarmCmd.Flags().IntVar(&warmWorkers, "workers", 0, "Concurrent fetchers (default from config warm_workers)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheWarmCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the metadata cache",
}

// CacheStatsResponse is the response for cache stats.
type CacheStatsResponse struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	Entries int    `json:"entries"`
	Catalog int    `json:"catalog"`
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache backend and size",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	store := mustOpenCache(cfg)
	defer closeOnExit(func() { store.Close() })()

	resp := CacheStatsResponse{
		Backend: cfg.Cache.Backend,
		Path:    cfg.Cache.Path,
		Entries: store.Len(),
	}
	if noCache {
		resp.Backend, resp.Path = "memory", ""
	}
	if a, err := loadArtifactQuiet(cfg); err == nil {
		resp.Catalog = a.Len()
	}

	if !humanOutput {
		return outputJSON(resp)
	}
	outputHuman("Backend: %s\n", resp.Backend)
	if resp.Path != "" {
		outputHuman("Path:    %s\n", resp.Path)
	}
	outputHuman("Entries: %d", resp.Entries)
	if resp.Catalog > 0 {
		outputHuman(" of %d catalog movies", resp.Catalog)
	}
	outputHuman("\n")
	return nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached metadata record",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	store := mustOpenCache(cfg)
	defer closeOnExit(func() { store.Close() })()

	n := store.Len()
	if err := store.Clear(); err != nil {
		exitWithError(ExitError, "clearing cache: %v", err)
	}
	if humanOutput {
		outputHuman("Removed %d cached records.\n", n)
		return nil
	}
	return outputJSON(StatusResponse{Status: "cleared", Count: n})
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Fetch metadata for catalog movies that are not cached yet",
	Long: `Fetch metadata for up to --batch catalog movies missing from the cache.
Requests go through the same rate limit, retries and circuit breaker as
recommendations. Run it repeatedly, or use 'serve' with warm_interval set,
to fill the cache over time.`,
	Args: cobra.NoArgs,
	RunE: runCacheWarm,
}

func runCacheWarm(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	cfg := warmer.Config{Batch: a.cfg.Server.WarmBatch, Workers: a.cfg.Server.WarmWorkers}
	if warmBatch > 0 {
		cfg.Batch = warmBatch
	}
	if warmWorkers > 0 {
		cfg.Workers = warmWorkers
	}

	stats, _ := warmer.New(cfg, a.holder, a.fetcher).RunOnce(cmd.Context())
	if !humanOutput {
		return outputJSON(stats)
	}
	outputHuman("Scanned %d, fetched %d, placeholders %d, cancelled %d in %s\n",
		stats.Scanned, stats.Fetched, stats.Placeholders, stats.Cancelled, stats.Duration.Round(time.Millisecond))
	return nil
}
