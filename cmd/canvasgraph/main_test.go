// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantRest   []string
		wantConfig []string
		wantJSON   bool
		wantTO     time.Duration
		wantErr    bool
	}{
		{
			name:     "command only",
			args:     []string{"build", "--state", "s.yaml"},
			wantRest: []string{"build", "--state", "s.yaml"},
			wantTO:   30 * time.Second,
		},
		{
			name:       "config flags are collected",
			args:       []string{"--config", "c.yaml", "--set=graph.validate=false", "--profile", "dev", "validate", "g.json"},
			wantRest:   []string{"validate", "g.json"},
			wantConfig: []string{"--config", "c.yaml", "--set=graph.validate=false", "--profile", "dev"},
			wantTO:     30 * time.Second,
		},
		{
			name:     "json and timeout",
			args:     []string{"--json", "--timeout", "5s", "models", "list"},
			wantRest: []string{"models", "list"},
			wantJSON: true,
			wantTO:   5 * time.Second,
		},
		{
			name:     "timeout with equals",
			args:     []string{"--timeout=1m", "--", "audit"},
			wantRest: []string{"audit"},
			wantTO:   time.Minute,
		},
		{name: "missing config value", args: []string{"--config"}, wantErr: true},
		{name: "bad timeout", args: []string{"--timeout", "soon"}, wantErr: true},
		{name: "unknown flag", args: []string{"--verbose", "build"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(rest, " ") != strings.Join(tt.wantRest, " ") {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
			if strings.Join(flags.ConfigArgs, " ") != strings.Join(tt.wantConfig, " ") {
				t.Errorf("config args = %v, want %v", flags.ConfigArgs, tt.wantConfig)
			}
			if flags.JSON != tt.wantJSON {
				t.Errorf("json = %v, want %v", flags.JSON, tt.wantJSON)
			}
			if flags.Timeout != tt.wantTO {
				t.Errorf("timeout = %v, want %v", flags.Timeout, tt.wantTO)
			}
		})
	}
}

func TestParseGlobalFlagsHelp(t *testing.T) {
	flags, rest, err := parseGlobalFlags([]string{"-h", "build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.Help || rest != nil {
		t.Fatalf("expected help with no rest, got %+v %v", flags, rest)
	}
}

func TestConfigPath(t *testing.T) {
	if got := configPath([]string{"--set", "a=b", "--config", "x.yaml"}); got != "x.yaml" {
		t.Errorf("configPath = %q", got)
	}
	if got := configPath([]string{"--config=y.json"}); got != "y.json" {
		t.Errorf("configPath = %q", got)
	}
	if got := configPath(nil); got != "" {
		t.Errorf("configPath = %q", got)
	}
}

func TestNormalizeCell(t *testing.T) {
	if got := normalizeCell("  "); got != "-" {
		t.Errorf("empty cell = %q", got)
	}
	if got := normalizeCell("a\n  b\tc"); got != "a b c" {
		t.Errorf("cell = %q", got)
	}
}

func TestWrapErrorHints(t *testing.T) {
	tests := []struct {
		err      error
		wantCode errors.ErrorCode
		wantHint string
	}{
		{errors.New(errors.CodeModelNotFound, "model missing", nil), errors.CodeModelNotFound, "models list"},
		{errors.New(errors.CodeMissingModel, "no model", nil), errors.CodeMissingModel, "params.model.key"},
		{errors.New(errors.CodePortConflict, "two writers", nil), errors.CodePortConflict, "canvasgraph validate"},
		{stderrors.New("boom"), errors.CodeInternal, ""},
	}
	for _, tt := range tests {
		cliErr := WrapError(tt.err)
		if cliErr.Err.Code != tt.wantCode {
			t.Errorf("code = %s, want %s", cliErr.Err.Code, tt.wantCode)
		}
		if !strings.Contains(cliErr.Hint, tt.wantHint) {
			t.Errorf("hint %q does not contain %q", cliErr.Hint, tt.wantHint)
		}
	}

	original := NewInvalidArgumentError("--state", "missing")
	if WrapError(original) != original {
		t.Errorf("CLIError should pass through WrapError")
	}
}

func TestPrintError(t *testing.T) {
	cliErr := NewConfigError(stderrors.New("bad yaml"), "config.yaml")

	var text bytes.Buffer
	cliErr.PrintError(&text, false)
	out := text.String()
	if !strings.Contains(out, "Error [Configuration]: configuration error: bad yaml") {
		t.Errorf("unexpected text output: %q", out)
	}
	if !strings.Contains(out, "Hint: check config.yaml") {
		t.Errorf("missing hint: %q", out)
	}

	var js bytes.Buffer
	cliErr.PrintError(&js, true)
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Context map[string]any `json:"context"`
		} `json:"error"`
	}
	if err := json.Unmarshal(js.Bytes(), &payload); err != nil {
		t.Fatalf("decode json error: %v", err)
	}
	if payload.Error.Code != string(errors.CodeConfiguration) {
		t.Errorf("code = %q", payload.Error.Code)
	}
	if payload.Error.Context["config_path"] != "config.yaml" {
		t.Errorf("context = %v", payload.Error.Context)
	}
}

func TestCLIErrorUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	cliErr := WrapConnectionError(cause, "http://localhost:9/mcp")
	if !stderrors.Is(cliErr, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(cliErr.Error(), "Hint:") {
		t.Errorf("Error() should include the hint: %q", cliErr.Error())
	}
}

func TestFormatErrorCode(t *testing.T) {
	if got := FormatErrorCode(errors.CodeIncompatibleModel); got != "Incompatible Model" {
		t.Errorf("got %q", got)
	}
	if got := FormatErrorCode(errors.ErrorCode("OTHER")); got != "OTHER" {
		t.Errorf("got %q", got)
	}
}
