package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Reload describes one applied change of the config file.
type Reload struct {
	// Old is the configuration in effect before the change.
	Old *Config
	// New is Old with the hot-reloadable sections taken from the file:
	// server.log_level, alignment and session.
	New *Config
	// Diff is Diff(Old, New). Its RestartRequired is always empty.
	Diff ConfigDiff
	// Held lists sections that differ in the file from the configuration
	// the process started with and wait for a restart.
	Held []string
}

// Watcher polls a config file and applies the sections that can change at
// runtime. Edits to server, providers or passages are never applied; they
// are reported as held until the process restarts. A file that fails to
// load or validate leaves the current configuration in place.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(Reload)
	log      *slog.Logger

	mu      sync.Mutex
	boot    *Config
	current *Config
	data    []byte
	held    []string
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

// WithWatchLogger sets the logger. The default is slog.Default.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path as the boot configuration. apply is called for every
// change of a hot-reloadable section; it may be nil.
func NewWatcher(path string, apply func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		apply:    apply,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, data, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.boot, w.current, w.data = cfg, cfg, data
	return w, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Held returns the sections waiting for a restart.
func (w *Watcher) Held() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.held)
}

// Watch polls until ctx is done.
func (w *Watcher) Watch(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check reads the file once and applies what changed. It reports whether
// apply was called.
func (w *Watcher) Check() bool {
	cfg, data, err := w.read()
	if err != nil {
		w.log.Warn("config reload skipped", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	if bytes.Equal(data, w.data) {
		w.mu.Unlock()
		return false
	}
	w.data = data

	held := Diff(w.boot, cfg).RestartRequired
	if !slices.Equal(held, w.held) && len(held) > 0 {
		w.log.Warn("config sections held until restart", "path", w.path, "sections", held)
	}
	w.held = held

	old := w.current
	next := hotSections(old, cfg)
	d := Diff(old, next)
	if !d.Changed() {
		w.mu.Unlock()
		return false
	}
	w.current = next
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path,
		"log_level", d.LogLevelChanged, "alignment", d.AlignmentChanged, "session", d.SessionChanged)
	if w.apply != nil {
		w.apply(Reload{Old: old, New: next, Diff: d, Held: held})
	}
	return true
}

// hotSections returns a copy of cur carrying the runtime-adjustable sections
// of file.
func hotSections(cur, file *Config) *Config {
	next := *cur
	next.Server.LogLevel = file.Server.LogLevel
	next.Alignment = file.Alignment
	next.Session = file.Session
	return &next
}

func (w *Watcher) read() (*Config, []byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}
