// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides logging, tracing and metrics for graph builds.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// BuildMetrics tracks graph builds, their size and skipped capabilities.
type BuildMetrics struct {
	// buildCounter counts builds by status, mode and base
	buildCounter metric.Int64Counter

	// errorCounter counts failed builds by error code
	errorCounter metric.Int64Counter

	// skipCounter counts capabilities skipped for the active model
	skipCounter metric.Int64Counter

	// nodeHistogram records the node count of finished graphs
	nodeHistogram metric.Int64Histogram

	// durationHistogram records build latency in milliseconds
	durationHistogram metric.Float64Histogram
}

// BuildRecord summarizes one build for RecordBuild.
type BuildRecord struct {
	Mode     string
	Base     string
	Nodes    int
	Edges    int
	Duration time.Duration
	Err      error
}

// NewBuildMetrics creates the build instruments on the global meter provider.
func NewBuildMetrics(ctx context.Context) (*BuildMetrics, error) {
	meter := otel.Meter("canvasgraph/builder")

	buildCounter, err := meter.Int64Counter(
		"canvasgraph.builds.total",
		metric.WithDescription("Graph builds by status, generation mode and base model"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"canvasgraph.builds.errors",
		metric.WithDescription("Failed graph builds by error code"),
	)
	if err != nil {
		return nil, err
	}

	skipCounter, err := meter.Int64Counter(
		"canvasgraph.capabilities.skipped",
		metric.WithDescription("Optional subsystems skipped because the model cannot host them"),
	)
	if err != nil {
		return nil, err
	}

	nodeHistogram, err := meter.Int64Histogram(
		"canvasgraph.graph.nodes",
		metric.WithDescription("Node count of built graphs"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(
		"canvasgraph.builds.duration",
		metric.WithDescription("Graph build latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &BuildMetrics{
		buildCounter:      buildCounter,
		errorCounter:      errorCounter,
		skipCounter:       skipCounter,
		nodeHistogram:     nodeHistogram,
		durationHistogram: durationHistogram,
	}, nil
}

// RecordBuild records the outcome of one build.
func (m *BuildMetrics) RecordBuild(ctx context.Context, r BuildRecord) {
	if m == nil {
		return
	}

	status := "ok"
	if r.Err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("build.status", status),
		attribute.String("build.mode", r.Mode),
		attribute.String("model.base", r.Base),
	)
	m.buildCounter.Add(ctx, 1, attrs)
	m.durationHistogram.Record(ctx, float64(r.Duration.Microseconds())/1000, attrs)

	if r.Err != nil {
		m.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("error.code", string(errors.CodeOf(r.Err))),
			),
		)
		return
	}
	m.nodeHistogram.Record(ctx, int64(r.Nodes), attrs)
}

// RecordSkip counts one skipped capability.
func (m *BuildMetrics) RecordSkip(ctx context.Context, capability string) {
	if m == nil {
		return
	}

	m.skipCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("capability", capability),
		),
	)
}
