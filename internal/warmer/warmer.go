// Package warmer pre-fetches movie metadata for catalog entries that are
// not cached yet, so recommendation requests mostly hit the cache.
package warmer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marco/cinematch/internal/catalog"
	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metadata"
)

// ArtifactSource returns the artifact whose catalog is walked.
type ArtifactSource interface {
	Current() *catalog.Artifact
}

// Fetcher is the metadata surface the warmer needs.
type Fetcher interface {
	Cached(movieID int) bool
	FetchMetadata(ctx context.Context, movieID int) metadata.Record
}

// Config controls batch size, pacing and concurrency.
type Config struct {
	Interval     time.Duration // zero disables the periodic loop
	Batch        int
	Workers      int
	RunOnStartup bool
}

// Stats summarizes one warm cycle.
type Stats struct {
	Scanned      int           `json:"scanned"`
	Fetched      int           `json:"fetched"`
	Placeholders int           `json:"placeholders"`
	Cancelled    int           `json:"cancelled"`
	Duration     time.Duration `json:"duration"`
}

// Warmer walks the catalog in batches, resuming where the previous cycle
// stopped and wrapping around at the end.
type Warmer struct {
	cfg       Config
	artifacts ArtifactSource
	fetcher   Fetcher

	inProgress atomic.Bool

	mu     sync.Mutex
	cursor int
}

// New creates a Warmer.
func New(cfg Config, artifacts ArtifactSource, fetcher Fetcher) *Warmer {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Warmer{cfg: cfg, artifacts: artifacts, fetcher: fetcher}
}

// Run warms periodically until ctx is done.
func (w *Warmer) Run(ctx context.Context) {
	if w.cfg.Interval <= 0 {
		return
	}

	logging.Info().
		Dur("interval", w.cfg.Interval).
		Int("batch", w.cfg.Batch).
		Bool("run_on_startup", w.cfg.RunOnStartup).
		Msg("metadata warming started")

	if w.cfg.RunOnStartup {
		w.runScheduled(ctx)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runScheduled(ctx)
		case <-ctx.Done():
			logging.Info().Msg("metadata warming stopped")
			return
		}
	}
}

func (w *Warmer) runScheduled(ctx context.Context) {
	stats, ok := w.RunOnce(ctx)
	if !ok {
		logging.Warn().
			Dur("interval", w.cfg.Interval).
			Msg("warm cycle skipped: previous cycle still running")
		return
	}
	logging.Info().
		Int("scanned", stats.Scanned).
		Int("fetched", stats.Fetched).
		Int("placeholders", stats.Placeholders).
		Int("cancelled", stats.Cancelled).
		Dur("duration", stats.Duration).
		Msg("warm cycle completed")
}

// RunOnce warms up to Batch uncached ids. It returns false without doing
// anything when another cycle is still running.
func (w *Warmer) RunOnce(ctx context.Context) (Stats, bool) {
	if !w.inProgress.CompareAndSwap(false, true) {
		return Stats{}, false
	}
	defer w.inProgress.Store(false)

	start := time.Now()
	ids, scanned := w.nextBatch()
	stats := Stats{Scanned: scanned}

	var processed int64
	results := FetchConcurrently(ctx, ids, w.fetch, w.cfg.Workers, &processed)
	for _, r := range results {
		switch {
		case r.Err != nil:
			stats.Cancelled++
		case r.Placeholder:
			stats.Placeholders++
		default:
			stats.Fetched++
		}
	}
	stats.Duration = time.Since(start)
	return stats, true
}

// fetch reports a placeholder produced because ctx ended as cancelled
// rather than as a failed fetch.
func (w *Warmer) fetch(ctx context.Context, movieID int) (bool, error) {
	r := w.fetcher.FetchMetadata(ctx, movieID)
	if r.IsPlaceholder() && ctx.Err() != nil {
		return true, ctx.Err()
	}
	return r.IsPlaceholder(), nil
}

// nextBatch collects uncached ids starting at the cursor, scanning each
// catalog entry at most once per call.
func (w *Warmer) nextBatch() ([]int, int) {
	a := w.artifacts.Current()
	n := a.Len()
	if n == 0 {
		return nil, 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cursor >= n {
		w.cursor = 0
	}

	var ids []int
	scanned := 0
	for scanned < n && len(ids) < w.cfg.Batch {
		e, _ := a.Index.Entry(w.cursor)
		w.cursor = (w.cursor + 1) % n
		scanned++
		if e.MovieID <= 0 || w.fetcher.Cached(e.MovieID) {
			continue
		}
		ids = append(ids, e.MovieID)
	}
	return ids, scanned
}
