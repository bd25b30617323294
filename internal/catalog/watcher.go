package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metrics"
)

// Holder publishes the current Artifact to concurrent readers.
type Holder struct {
	current atomic.Pointer[Artifact]
}

// NewHolder returns a Holder serving a.
func NewHolder(a *Artifact) *Holder {
	h := &Holder{}
	h.current.Store(a)
	return h
}

// Current returns the active artifact. Callers keep using the returned
// value for the whole request even if a reload happens meanwhile.
func (h *Holder) Current() *Artifact {
	return h.current.Load()
}

// Store replaces the active artifact.
func (h *Holder) Store(a *Artifact) {
	h.current.Store(a)
}

// WatcherConfig holds configuration for the artifact watcher
type WatcherConfig struct {
	CatalogPath   string
	MatrixPath    string
	Ambiguous     map[string]string
	DebounceDelay time.Duration // How long to wait after the last event before reloading
}

// Watcher reloads the artifact pair into a Holder when either file changes.
// A reload that fails validation leaves the previous artifact in place.
type Watcher struct {
	cfg      WatcherConfig
	holder   *Holder
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	doneChan chan struct{}

	mu    sync.Mutex
	timer *time.Timer

	// OnReload is called after every reload attempt. Used by tests.
	OnReload func(err error)
}

// NewWatcher creates a watcher for the directories holding both files.
func NewWatcher(cfg WatcherConfig, holder *Holder) (*Watcher, error) {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 2 * time.Second
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:      cfg,
		holder:   holder,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins watching. Directories, not files, are watched so that
// atomic rename-into-place writes are seen.
func (w *Watcher) Start() error {
	dirs := map[string]struct{}{
		filepath.Dir(w.cfg.CatalogPath): {},
		filepath.Dir(w.cfg.MatrixPath):  {},
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go w.processEvents()

	logging.Info().
		Str("catalog", w.cfg.CatalogPath).
		Str("matrix", w.cfg.MatrixPath).
		Float64("debounce_seconds", w.cfg.DebounceDelay.Seconds()).
		Msg("artifact watcher started")
	return nil
}

// Stop stops watching and cancels a pending reload.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	<-w.doneChan

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.isArtifact(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
		logging.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("artifact event detected")
		w.scheduleReload()
	}
}

func (w *Watcher) isArtifact(path string) bool {
	p := filepath.Clean(path)
	return p == filepath.Clean(w.cfg.CatalogPath) || p == filepath.Clean(w.cfg.MatrixPath)
}

// scheduleReload collapses bursts of events (catalog and matrix are usually
// replaced together) into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.DebounceDelay, w.reload)
}

func (w *Watcher) reload() {
	a, err := Load(w.cfg.CatalogPath, w.cfg.MatrixPath, w.cfg.Ambiguous)
	if err != nil {
		metrics.ArtifactReloads.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("artifact reload failed, keeping previous artifact")
	} else {
		w.holder.Store(a)
		metrics.ArtifactReloads.WithLabelValues("ok").Inc()
		logging.Info().Int("movies", a.Len()).Msg("artifact reloaded")
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
