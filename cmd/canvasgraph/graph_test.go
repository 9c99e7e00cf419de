// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/graph"
	"github.com/jllopis/canvasgraph/pkg/model"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	resolver := model.NewMemoryResolver(model.Descriptor{
		Identifier: model.Identifier{Key: "sd15", Name: "SD 1.5", Base: model.BaseSD1, Type: model.TypeMain},
	})
	s := canvas.Defaults()
	s.Mode = canvas.ModeTxt2Img
	s.Params.Model = &model.Identifier{Key: "sd15"}
	s.Params.PositivePrompt = "a lighthouse at dusk"

	b := builder.New(resolver, nil, builder.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	res, err := b.Build(context.Background(), &s)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return res.Graph
}

func writeGraphFile(t *testing.T, g *graph.Graph, name string) string {
	t.Helper()
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(name, ".yaml") {
		data, err = graph.MarshalYAML(g)
	} else {
		data, err = graph.MarshalJSON(g, true)
	}
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	return path
}

func TestToMermaid(t *testing.T) {
	out := toMermaid(testGraph(t))

	if !strings.HasPrefix(out, "graph TD\n") {
		t.Errorf("mermaid should start with graph TD: %q", out)
	}
	expected := []string{
		"noise[noise: noise]",
		"canvas_output[canvas_output: l2i]",
		"denoise_latents -->|latents→latents| canvas_output",
		"style canvas_output fill:#90EE90",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("mermaid missing %q:\n%s", want, out)
		}
	}
}

func TestToDot(t *testing.T) {
	out := toDot(testGraph(t))

	expected := []string{
		`digraph "canvas_graph" {`,
		`"noise" -> "denoise_latents" [label="noise:noise"];`,
		`fillcolor="#90EE90"`,
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("dot missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Errorf("dot should end with a closing brace")
	}
}

func TestRunGraphFormats(t *testing.T) {
	jsonPath := writeGraphFile(t, testGraph(t), "graph.json")
	yamlPath := writeGraphFile(t, testGraph(t), "graph.yaml")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"mermaid from json", []string{"--path", jsonPath}, "graph TD"},
		{"dot from yaml", []string{"--output", "dot", yamlPath}, "digraph"},
		{"json", []string{"--path", yamlPath, "--output", "json"}, `"canvas_output"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runGraph(globalFlags{}, tt.args, &out); err != nil {
				t.Fatalf("runGraph: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestRunGraphJSONEnvelope(t *testing.T) {
	path := writeGraphFile(t, testGraph(t), "graph.json")
	var out bytes.Buffer
	if err := runGraph(globalFlags{JSON: true}, []string{"--path", path}, &out); err != nil {
		t.Fatalf("runGraph: %v", err)
	}
	var res graphResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	g := testGraph(t)
	if res.Format != "mermaid" || res.Nodes != g.NodeCount() || res.Edges != len(g.Edges()) || res.GraphID != builder.GraphID {
		t.Errorf("unexpected envelope: %+v", res)
	}
}

func TestRunGraphErrors(t *testing.T) {
	path := writeGraphFile(t, testGraph(t), "graph.json")
	if err := runGraph(globalFlags{}, nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error without a path")
	}
	if err := runGraph(globalFlags{}, []string{"--path", path, "--output", "svg"}, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for unknown output")
	}
	if err := runGraph(globalFlags{}, []string{"--path", filepath.Join(t.TempDir(), "none.json")}, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for missing file")
	}
}
