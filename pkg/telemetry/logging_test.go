// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerAddsBuildAndTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("canvasgraph/test").Start(context.Background(), "Builder.Build")
	defer span.End()
	ctx = WithBuildID(ctx, "build-42")

	logger.InfoContext(ctx, "graph built", slog.Int("nodes", 9))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["build_id"] != "build-42" {
		t.Errorf("unexpected build_id %v", record["build_id"])
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("unexpected trace_id %v", record["trace_id"])
	}
	if record["span_id"] == nil {
		t.Error("missing span_id")
	}
}

func TestLoggerWithoutContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text")
	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record must be filtered: %s", out)
	}
	if !strings.Contains(out, "visible") || strings.Contains(out, "trace_id") || strings.Contains(out, "build_id") {
		t.Fatalf("unexpected output %s", out)
	}
}
