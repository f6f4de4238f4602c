// Package watch reloads a policy file when it changes on disk, so a long
// running `tracewatch watch` process can pick up edits without restarting.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls a Watcher's debounce behavior.
type Config struct {
	// DebounceInterval is how long to wait after the last write event
	// before calling onChange, so a multi-write save doesn't trigger
	// several reloads in a row.
	DebounceInterval time.Duration
}

// DefaultConfig returns the default debounce interval.
func DefaultConfig() Config {
	return Config{DebounceInterval: 150 * time.Millisecond}
}

// Watcher watches a single policy file for changes.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a Watcher on path, which must name a file (not a
// directory) — the policy file is watched by watching its containing
// directory, since editors commonly replace a file rather than write it
// in place, which a direct file watch would miss.
func New(path string, cfg Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		path:     path,
		fw:       fw,
		logger:   logger,
		debounce: cfg.DebounceInterval,
	}, nil
}

// Run watches until ctx is cancelled, calling onChange (debounced) every
// time the policy file is written, created, or renamed into place.
// onChange errors are logged, not returned — a bad edit shouldn't kill
// the watch loop, only skip that reload.
func (w *Watcher) Run(ctx context.Context, onChange func() error) error {
	defer w.fw.Close()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload(onChange)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload(onChange func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := onChange(); err != nil {
			w.logger.Error("policy reload failed", "path", w.path, "error", err)
			return
		}
		w.logger.Info("policy reloaded", "path", w.path)
	})
}

// Stop cancels any pending debounced reload. Run still needs its context
// cancelled separately to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
