package telemetry

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "none", cfg: Config{Exporter: ExporterNone}},
		{name: "stdout", cfg: Config{Exporter: ExporterStdout, Output: &bytes.Buffer{}}},
		{name: "default is stdout", cfg: Config{Output: &bytes.Buffer{}}},
		{name: "otlp without endpoint", cfg: Config{Exporter: ExporterOTLP}, wantErr: true},
		{name: "unknown", cfg: Config{Exporter: "zipkin"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitWithConfig("canvasgraph-test", "v0.0.1", tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("init failed: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown failed: %v", err)
			}
		})
	}
}

func TestStdoutExporterWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitWithConfig("canvasgraph-test", "v0.0.1", Config{Exporter: ExporterStdout, Output: &buf})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	_, span := otel.Tracer("canvasgraph/test").Start(context.Background(), "Builder.Build")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("Builder.Build")) {
		t.Fatalf("expected the span in the configured output, got %q", buf.String())
	}
}
