// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

const testRegistry = `models:
  - key: sd15
    name: Stable Diffusion 1.5
    base: sd-1
    type: main
  - key: sdxl-base
    name: SDXL Base
    base: sdxl
    type: main
  - key: detail
    base: sd-1
    type: lora
`

const testState = `mode: txt2img
params:
  model:
    key: sd15
  seed: 7
  positive_prompt: a lighthouse at dusk
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Models.Source = "yaml"
	cfg.Models.Path = writeFile(t, dir, "models.yaml", testRegistry)
	cfg.Audit.Driver = "memory"
	return cfg
}

func TestRunBuildToStdout(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	statePath := writeFile(t, dir, "state.yaml", testState)

	var out bytes.Buffer
	if err := runBuild(context.Background(), globalFlags{}, cfg, []string{"--state", statePath}, &out); err != nil {
		t.Fatalf("runBuild: %v", err)
	}
	g, err := graph.ParseJSON(bytes.TrimSpace(out.Bytes()))
	if err != nil {
		t.Fatalf("output is not a valid graph: %v", err)
	}
	if !g.HasNode(builder.CanvasOutputID) {
		t.Errorf("graph has no %s node", builder.CanvasOutputID)
	}
	if g.Metadata()["generation_mode"] != "txt2img" {
		t.Errorf("metadata = %v", g.Metadata())
	}
}

func TestRunBuildToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	statePath := writeFile(t, dir, "state.yaml", testState)
	outPath := filepath.Join(dir, "graph.yaml")

	var out bytes.Buffer
	args := []string{"--state", statePath, "--out", outPath, "--format", "yaml"}
	if err := runBuild(context.Background(), globalFlags{JSON: true}, cfg, args, &out); err != nil {
		t.Fatalf("runBuild: %v", err)
	}

	var summary buildResult
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Mode != "txt2img" || summary.Base != "sd-1" || summary.Output != builder.CanvasOutputID {
		t.Errorf("unexpected summary: %+v", summary)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	g, err := graph.ParseYAML(data)
	if err != nil {
		t.Fatalf("written graph is invalid: %v", err)
	}
	if g.NodeCount() != summary.Nodes {
		t.Errorf("nodes = %d, summary says %d", g.NodeCount(), summary.Nodes)
	}
}

func TestRunBuildErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	tests := []struct {
		name     string
		state    string
		args     []string
		wantCode errors.ErrorCode
	}{
		{name: "missing state flag", args: []string{}, wantCode: errors.CodeConfiguration},
		{name: "unknown format", state: testState, args: []string{"--format", "toml"}, wantCode: errors.CodeConfiguration},
		{name: "unknown model", state: strings.Replace(testState, "sd15", "nope", 1), wantCode: errors.CodeModelNotFound},
		{name: "no model", state: "mode: txt2img\n", wantCode: errors.CodeMissingModel},
		{name: "lora as main model", state: strings.Replace(testState, "sd15", "detail", 1), wantCode: errors.CodeIncompatibleModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.state != "" {
				args = append([]string{"--state", writeFile(t, t.TempDir(), "state.yaml", tt.state)}, args...)
			}
			err := runBuild(context.Background(), globalFlags{}, cfg, args, &bytes.Buffer{})
			if err == nil {
				t.Fatalf("expected error")
			}
			if code := WrapError(err).Err.Code; code != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", code, tt.wantCode, err)
			}
		})
	}
}

func TestReadStateFromStdin(t *testing.T) {
	s, err := readState("-", strings.NewReader(testState))
	if err != nil {
		t.Fatalf("readState: %v", err)
	}
	if s.Params.Model == nil || s.Params.Model.Key != "sd15" {
		t.Fatalf("unexpected state: %+v", s.Params.Model)
	}
}

func TestRunValidate(t *testing.T) {
	path := writeGraphFile(t, testGraph(t), "graph.json")

	var out bytes.Buffer
	if err := runValidate(globalFlags{}, []string{path}, &out); err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out.String(), "ok (") || !strings.Contains(out.String(), "order: ") {
		t.Errorf("unexpected output: %q", out.String())
	}

	broken := writeFile(t, t.TempDir(), "broken.json",
		`{"id":"g","nodes":{"l2i":{"type":"l2i","id":"l2i"}},"edges":[]}`)
	out.Reset()
	err := runValidate(globalFlags{JSON: true}, []string{broken}, &out)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code := errors.CodeOf(err); code != errors.CodeInvalidGraph {
		t.Errorf("code = %s", code)
	}
	if !strings.Contains(out.String(), `"valid": false`) {
		t.Errorf("json output should report invalid: %q", out.String())
	}

	if err := runValidate(globalFlags{}, nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected usage error")
	}
}

func TestRunModelsListAndShow(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()

	var out bytes.Buffer
	if err := runModels(ctx, globalFlags{}, cfg, []string{"list"}, &out); err != nil {
		t.Fatalf("models list: %v", err)
	}
	for _, want := range []string{"KEY", "sd15", "sdxl-base", "detail"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("list missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := runModels(ctx, globalFlags{}, cfg, []string{"list", "--base", "sdxl"}, &out); err != nil {
		t.Fatalf("models list --base: %v", err)
	}
	if strings.Contains(out.String(), "sd15") || !strings.Contains(out.String(), "sdxl-base") {
		t.Errorf("base filter not applied:\n%s", out.String())
	}

	out.Reset()
	if err := runModels(ctx, globalFlags{}, cfg, []string{"show", "sd15"}, &out); err != nil {
		t.Fatalf("models show: %v", err)
	}
	if !strings.Contains(out.String(), "Stable Diffusion 1.5") || !strings.Contains(out.String(), "IP-Adapter:") {
		t.Errorf("unexpected show output:\n%s", out.String())
	}

	err := runModels(ctx, globalFlags{}, cfg, []string{"show", "missing"}, &bytes.Buffer{})
	if errors.CodeOf(err) != errors.CodeModelNotFound {
		t.Errorf("expected MODEL_NOT_FOUND, got %v", err)
	}
}

func TestRunModelsImport(t *testing.T) {
	dir := t.TempDir()
	registry := writeFile(t, dir, "registry.yaml", testRegistry)
	ctx := context.Background()

	yamlCfg := testConfig(t, dir)
	if err := runModels(ctx, globalFlags{}, yamlCfg, []string{"import", registry}, &bytes.Buffer{}); err == nil {
		t.Fatalf("import should require a sqlite store")
	}

	cfg := testConfig(t, dir)
	cfg.Models.Source = "sqlite"
	cfg.Models.Path = filepath.Join(dir, "models.db")

	var out bytes.Buffer
	if err := runModels(ctx, globalFlags{JSON: true}, cfg, []string{"import", registry}, &out); err != nil {
		t.Fatalf("import: %v", err)
	}
	var res importResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Imported != 3 {
		t.Errorf("imported = %d, want 3", res.Imported)
	}

	out.Reset()
	if err := runModels(ctx, globalFlags{}, cfg, []string{"list", "--base", "sd-1"}, &out); err != nil {
		t.Fatalf("list from sqlite: %v", err)
	}
	if !strings.Contains(out.String(), "sd15") || strings.Contains(out.String(), "sdxl-base") {
		t.Errorf("unexpected sqlite listing:\n%s", out.String())
	}
}

func TestRunAuditList(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Audit.Driver = "sqlite"
	cfg.Audit.DSN = filepath.Join(dir, "audit.db")
	ctx := context.Background()

	statePath := writeFile(t, dir, "state.yaml", testState)
	if err := runBuild(ctx, globalFlags{}, cfg, []string{"--state", statePath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("build: %v", err)
	}
	badState := writeFile(t, dir, "bad.yaml", strings.Replace(testState, "sd15", "nope", 1))
	if err := runBuild(ctx, globalFlags{}, cfg, []string{"--state", badState}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected failing build")
	}

	var out bytes.Buffer
	if err := runAudit(ctx, globalFlags{JSON: true}, cfg, []string{"list"}, &out); err != nil {
		t.Fatalf("audit list: %v", err)
	}
	var rows []auditRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(rows))
	}

	out.Reset()
	if err := runAudit(ctx, globalFlags{JSON: true}, cfg, []string{"list", "--status", "failed"}, &out); err != nil {
		t.Fatalf("audit list --status: %v", err)
	}
	rows = nil
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Model != "nope" || rows[0].Error == "" {
		t.Errorf("unexpected failed rows: %+v", rows)
	}

	out.Reset()
	if err := runAudit(ctx, globalFlags{}, cfg, []string{"list", "--model", "sd15"}, &out); err != nil {
		t.Fatalf("audit list table: %v", err)
	}
	if !strings.Contains(out.String(), "BUILD") || !strings.Contains(out.String(), "ok") {
		t.Errorf("unexpected table:\n%s", out.String())
	}

	if err := runAudit(ctx, globalFlags{}, cfg, []string{"list", "--status", "maybe"}, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for unknown status")
	}
}

func TestRunUnknownCommands(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()
	if err := run(ctx, globalFlags{}, cfg, []string{"frobnicate"}); err == nil {
		t.Errorf("expected error for unknown command")
	}
	if err := runModels(ctx, globalFlags{}, cfg, []string{"delete"}, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for unknown models subcommand")
	}
	if err := runMCP(ctx, globalFlags{}, cfg, []string{"call", "explode"}, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for unknown mcp tool")
	}
}
