package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/api"
	"github.com/marco/cinematch/internal/catalog"
	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/warmer"
)

var (
	serveAddr         string
	serveWatch        bool
	serveWarmInterval time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the artifact when its files change (also server.watch_artifact)")
	serveCmd.Flags().DurationVar(&serveWarmInterval, "warm-interval", 0, "Warm uncached metadata on this interval (default from config server.warm_interval minutes)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Long: `Serve the recommendation API over HTTP until interrupted.

Endpoints under /api/v1 require HTTP basic auth with a registered user,
except POST /api/v1/users which creates one. Prometheus metrics are exposed
on /metrics and liveness on /healthz.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	cfg := a.cfg

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if serveWatch || cfg.Server.WatchArtifact {
		w, err := catalog.NewWatcher(catalog.WatcherConfig{
			CatalogPath:   cfg.Data.Catalog,
			MatrixPath:    cfg.Data.Matrix,
			Ambiguous:     cfg.Data.AmbiguousTitles,
			DebounceDelay: time.Duration(cfg.Server.WatchDebounce) * time.Millisecond,
		}, a.holder)
		if err != nil {
			exitWithError(ExitError, "creating artifact watcher: %v", err)
		}
		if err := w.Start(); err != nil {
			exitWithError(ExitError, "starting artifact watcher: %v", err)
		}
		defer w.Stop()
	}

	interval := serveWarmInterval
	if interval == 0 {
		interval = time.Duration(cfg.Server.WarmInterval) * time.Minute
	}
	if interval > 0 {
		wm := warmer.New(warmer.Config{
			Interval:     interval,
			Batch:        cfg.Server.WarmBatch,
			Workers:      cfg.Server.WarmWorkers,
			RunOnStartup: true,
		}, a.holder, a.fetcher)
		warmDone := make(chan struct{})
		go func() {
			defer close(warmDone)
			wm.Run(ctx)
		}()
		// Joined before the stores close.
		defer closeOnExit(func() {
			cancel()
			<-warmDone
		})()
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Config{
			Service:     a.svc,
			Users:       a.history,
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Int("movies", a.holder.Current().Len()).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			exitWithError(ExitError, "server: %v", err)
		}
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
	return nil
}
