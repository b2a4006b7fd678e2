package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// snapshot is one successfully loaded state of the config file. The hash and
// mtime let the poller skip reparsing an unchanged file.
type snapshot struct {
	cfg   *Config
	hash  [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file and delivers hot-reloadable changes. It uses
// polling (not fsnotify) to keep dependencies minimal.
//
// The callback receives the newly loaded config together with the
// [ConfigDiff] against the previous one. It fires only when at least one
// hot-reloadable field changed: edits to restart-only fields (listen address,
// provider credentials, storage DSN) update Current() silently.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(cfg *Config, diff ConfigDiff)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(cfg *Config, diff ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if cfg, diff, ok := w.reload(); ok && w.onChange != nil {
				// Outside the lock so the callback can call Current().
				w.onChange(cfg, diff)
			}
		}
	}
}

// reload re-reads the file when it changed on disk and swaps in the new
// config. It reports whether a hot-reloadable field changed.
func (w *Watcher) reload() (*Config, ConfigDiff, bool) {
	// Cheap mtime probe first to avoid hashing an untouched file.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, ConfigDiff{}, false
	}

	w.mu.Lock()
	mtime := w.last.mtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return nil, ConfigDiff{}, false
	}

	snap, err := load(w.path)
	if err != nil {
		// Keep serving the last valid config.
		slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return nil, ConfigDiff{}, false
	}

	w.mu.Lock()
	prev := w.last
	if snap.hash == prev.hash {
		// Touched but identical content.
		w.last.mtime = snap.mtime
		w.mu.Unlock()
		return nil, ConfigDiff{}, false
	}
	w.last = snap
	w.mu.Unlock()

	diff := Diff(prev.cfg, snap.cfg)
	slog.Info("config watcher: configuration reloaded",
		"path", w.path, "hot_reload", diff.Changed())

	return snap.cfg, diff, diff.Changed()
}

// load reads and validates the config file, returning it as a snapshot. An
// invalid file is an error; the caller keeps whatever it had before.
func load(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}

	return snapshot{cfg: cfg, hash: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
