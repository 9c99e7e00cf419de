// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/model"
	"github.com/jllopis/canvasgraph/pkg/telemetry"
)

// modelLister is implemented by the registries that can enumerate models.
type modelLister interface {
	List(ctx context.Context, base model.BaseModel) ([]model.Descriptor, error)
}

// memoryLister adapts MemoryResolver, which lists every base at once.
type memoryLister struct {
	*model.MemoryResolver
}

func (l memoryLister) List(ctx context.Context, base model.BaseModel) ([]model.Descriptor, error) {
	all, err := l.MemoryResolver.List(ctx)
	if err != nil || base == "" {
		return all, err
	}
	out := all[:0]
	for _, d := range all {
		if d.Base == base {
			out = append(out, d)
		}
	}
	return out, nil
}

// app holds the components shared by commands for one invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver model.Resolver
	lister   modelLister
	store    *model.SQLiteStore
	audit    builder.AuditStore
	metrics  *telemetry.BuildMetrics
	closers  []func() error

	refMu    sync.Mutex
	refs     int
	retiring bool
	drained  chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default(), drained: make(chan struct{})}

	if err := a.openModels(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openAudit(); err != nil {
		a.Close()
		return nil, err
	}

	metrics, err := telemetry.NewBuildMetrics(ctx)
	if err != nil {
		a.logger.Warn("build metrics disabled", slog.Any("error", err))
	}
	a.metrics = metrics
	return a, nil
}

func (a *app) openModels() error {
	var base model.Resolver
	switch a.cfg.Models.Source {
	case "yaml":
		reg, err := model.LoadRegistry(a.cfg.Models.Path)
		if err != nil {
			return errors.New(errors.CodeModelResolution, "load model registry", err).
				WithContext("path", a.cfg.Models.Path)
		}
		base = reg
		a.lister = memoryLister{reg}
	case "sqlite":
		store, err := model.OpenSQLiteStore(a.cfg.Models.Path)
		if err != nil {
			return errors.New(errors.CodeModelResolution, "open model store", err).
				WithContext("dsn", a.cfg.Models.Path)
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
		base = store
		a.lister = store
	default:
		reg := model.NewMemoryResolver()
		base = reg
		a.lister = memoryLister{reg}
	}

	a.resolver = base
	if a.cfg.Models.CacheSize > 0 {
		cached, err := model.NewCachedResolver(base, a.cfg.Models.CacheSize)
		if err != nil {
			return errors.New(errors.CodeConfiguration, "models.cache_size", err)
		}
		a.resolver = cached
	}
	return nil
}

func (a *app) openAudit() error {
	switch a.cfg.Audit.Driver {
	case "sqlite":
		store, err := builder.OpenSQLiteAuditStore(a.cfg.Audit.DSN)
		if err != nil {
			return errors.New(errors.CodeConfiguration, "open audit store", err).
				WithContext("dsn", a.cfg.Audit.DSN)
		}
		a.closers = append(a.closers, store.Close)
		a.audit = store
	default:
		a.audit = builder.NewMemoryAuditStore()
	}
	return nil
}

// newBuilder returns a builder configured from the graph settings.
func (a *app) newBuilder() *builder.Builder {
	opts := []builder.Option{
		builder.WithLogger(a.logger),
		builder.WithIDStrategy(a.cfg.Graph.IDStrategy),
		builder.WithValidation(a.cfg.Graph.Validate),
		builder.WithAuditStore(a.audit),
		builder.WithMetrics(a.metrics),
	}
	if a.cfg.Graph.ExpectedBase != "" {
		opts = append(opts, builder.WithExpectedBase(model.BaseModel(a.cfg.Graph.ExpectedBase)))
	}
	return builder.New(a.resolver, nil, opts...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

// acquire marks one build as using the app. It fails once the app is retiring.
func (a *app) acquire() bool {
	a.refMu.Lock()
	defer a.refMu.Unlock()
	if a.retiring {
		return false
	}
	a.refs++
	return true
}

func (a *app) release() {
	a.refMu.Lock()
	defer a.refMu.Unlock()
	a.refs--
	if a.refs == 0 && a.retiring {
		close(a.drained)
	}
}

// retire stops new builds from acquiring the app and closes it once the
// builds already holding it are released, or when grace expires. The
// returned channel is closed after Close has run.
func (a *app) retire(grace time.Duration) <-chan struct{} {
	done := make(chan struct{})
	a.refMu.Lock()
	if a.retiring {
		a.refMu.Unlock()
		close(done)
		return done
	}
	a.retiring = true
	if a.refs == 0 {
		close(a.drained)
	}
	a.refMu.Unlock()

	go func() {
		defer close(done)
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-a.drained:
		case <-timer.C:
			a.refMu.Lock()
			inFlight := a.refs
			a.refMu.Unlock()
			a.logger.Warn("closing with builds in flight", slog.Int("builds", inFlight))
		}
		a.Close()
	}()
	return done
}
