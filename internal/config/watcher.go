package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and calls a callback when its content changes
// to another valid config. Invalid edits are logged and ignored, so the last
// good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte
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

// NewWatcher loads the config at path. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	if snap.cfg == nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", snap.err)
	}
	w.current, w.lastHash, w.lastMtime = snap.cfg, snap.hash, snap.mtime
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled and then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

type fileSnapshot struct {
	cfg   *Config
	err   error // validation error when cfg is nil
	hash  [sha256.Size]byte
	mtime time.Time
}

// read loads the file. I/O failures are returned; parse and validation
// failures are reported in fileSnapshot.err so the hash can still be
// remembered.
func (w *Watcher) read() (fileSnapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileSnapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fileSnapshot{}, err
	}
	snap := fileSnapshot{hash: sha256.Sum256(data), mtime: info.ModTime()}
	snap.cfg, snap.err = LoadFromReader(bytes.NewReader(data))
	return snap, nil
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watcher cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config: watcher cannot read file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.lastMtime = snap.mtime
	if snap.hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = snap.hash
	if snap.cfg == nil {
		w.mu.Unlock()
		slog.Warn("config: watcher ignoring invalid config", "path", w.path, "err", snap.err)
		return
	}
	old := w.current
	w.current = snap.cfg
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, snap.cfg)
	}
}
