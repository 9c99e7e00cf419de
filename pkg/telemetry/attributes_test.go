// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestBuildAttributes(t *testing.T) {
	attrs := BuildAttributes("build-1", "inpaint", "sdxl", "sdxl-base")

	expected := map[string]any{
		AttrBuildID:   "build-1",
		AttrBuildMode: "inpaint",
		AttrModelBase: "sdxl",
		AttrModelKey:  "sdxl-base",
	}

	assertAttributes(t, attrs, expected)
}

func TestBuildAttributesOmitEmpty(t *testing.T) {
	attrs := BuildAttributes("build-1", "", "", "")
	if len(attrs) != 1 {
		t.Fatalf("expected only the build id, got %v", attrs)
	}
}

func TestGraphAttributes(t *testing.T) {
	attrs := GraphAttributes("canvas_graph", 9, 11)

	expected := map[string]any{
		AttrGraphID:    "canvas_graph",
		AttrGraphNodes: 9,
		AttrGraphEdges: 11,
	}

	assertAttributes(t, attrs, expected)
}

func TestStepAttributes(t *testing.T) {
	attrs := StepAttributes("LoRAs", 2)

	expected := map[string]any{
		AttrBuildStep:       "LoRAs",
		AttrGraphNodesAdded: 2,
	}

	assertAttributes(t, attrs, expected)
}

func TestSkipAttributes(t *testing.T) {
	reason := strings.Repeat("x", 300)
	attrs := SkipAttributes("controlnet", "canny", reason)

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}
	if found[AttrCapability].Value.AsString() != "controlnet" {
		t.Errorf("unexpected capability %v", found[AttrCapability])
	}
	if found[AttrCapabilityEntity].Value.AsString() != "canny" {
		t.Errorf("unexpected entity %v", found[AttrCapabilityEntity])
	}
	if got := len(found[AttrCapabilityReason].Value.AsString()); got != 256 {
		t.Errorf("expected reason truncated to 256, got %d", got)
	}

	if attrs := SkipAttributes("lora", "", ""); len(attrs) != 1 {
		t.Errorf("expected only the capability, got %v", attrs)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, "hello"},
	}

	for _, tt := range tests {
		if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
