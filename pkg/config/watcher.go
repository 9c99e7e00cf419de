// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Watcher polls configuration files and reloads when one of them changes.
type Watcher struct {
	mu          sync.RWMutex
	paths       []string
	interval    time.Duration
	lastModTime map[string]time.Time
	config      *Config
	loader      func() (*Config, error)
	listeners   []func(*Config)
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithLoader replaces the default loader, which is Load on the first path.
// The CLI uses it to keep --set overrides across reloads.
func WithLoader(load func() (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		if load != nil {
			w.loader = load
		}
	}
}

// NewWatcher creates a watcher over paths and loads the initial config.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:       paths,
		interval:    1 * time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	w.loader = w.loadFirstPath

	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTime[path] = info.ModTime()
		}
	}

	cfg, err := w.loader()
	if err != nil {
		return nil, err
	}
	w.config = cfg

	return w, nil
}

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins watching for configuration changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the polling goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) checkForChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		lastMod, exists := w.lastModTime[path]
		if !exists || info.ModTime().After(lastMod) {
			w.lastModTime[path] = info.ModTime()
			changed = true
		}
	}
	return changed
}

func (w *Watcher) reload() {
	w.logger.Info("config file changed, reloading")

	cfg, err := w.loader()
	if err != nil {
		// The previous config stays active.
		w.logger.Error("failed to reload config", "error", err)
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config reloaded",
		slog.String("models.source", cfg.Models.Source),
		slog.String("graph.id_strategy", cfg.Graph.IDStrategy))

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (w *Watcher) loadFirstPath() (*Config, error) {
	if len(w.paths) == 0 {
		return Load("")
	}
	return Load(w.paths[0])
}

// WatchConfig watches configPath, its profile overlays and, for a YAML model
// source, the model registry file. It starts the watcher and returns the
// initial config.
func WatchConfig(ctx context.Context, configPath string, opts ...WatcherOption) (*Watcher, *Config, error) {
	opts = append([]WatcherOption{WithLoader(func() (*Config, error) { return Load(configPath) })}, opts...)

	watcher, err := NewWatcher(watchPaths(configPath), opts...)
	if err != nil {
		return nil, nil, err
	}
	if cfg := watcher.Config(); cfg.Models.Source == "yaml" && cfg.Models.Path != "" {
		watcher.addPath(cfg.Models.Path)
	}

	watcher.Start(ctx)
	return watcher, watcher.Config(), nil
}

func watchPaths(configPath string) []string {
	if configPath == "" {
		return nil
	}
	paths := []string{configPath}

	dir := filepath.Dir(configPath)
	ext := filepath.Ext(configPath)
	name := strings.TrimSuffix(filepath.Base(configPath), ext)
	for _, profile := range []string{"dev", "prod", "staging", "local"} {
		profilePath := filepath.Join(dir, name+"."+profile+ext)
		if _, err := os.Stat(profilePath); err == nil {
			paths = append(paths, profilePath)
		}
	}
	return paths
}

func (w *Watcher) addPath(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.paths {
		if p == path {
			return
		}
	}
	w.paths = append(w.paths, path)
	if info, err := os.Stat(path); err == nil {
		w.lastModTime[path] = info.ModTime()
	}
}
