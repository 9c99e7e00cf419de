// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(CodeModelResolution, "resolve model", cause)

	if e.Code != CodeModelResolution {
		t.Errorf("expected CodeModelResolution, got %v", e.Code)
	}
	if e.Message != "resolve model" {
		t.Errorf("expected message 'resolve model', got %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	e := New(CodePortConflict, "port already connected", nil)
	e.WithContext("node", "denoise_latents").
		WithContext("port", "unet")

	if e.Context["node"] != "denoise_latents" {
		t.Errorf("expected context node to be 'denoise_latents'")
	}
	if e.Context["port"] != "unet" {
		t.Errorf("expected context port to be set")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		e        *Error
		expected string
	}{
		{
			name:     "with cause",
			e:        New(CodeModelResolution, "resolve model", errors.New("timeout")),
			expected: "[MODEL_RESOLUTION] resolve model: timeout",
		},
		{
			name:     "without cause",
			e:        Newf(CodeUnknownNode, "node %q not found", "noise"),
			expected: `[UNKNOWN_NODE] node "noise" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("add edge: %w", Newf(CodePortConflict, "port taken"))
	if !errors.Is(err, ErrPortConflict) {
		t.Fatalf("expected wrapped error to match ErrPortConflict")
	}
	if errors.Is(err, ErrDuplicateID) {
		t.Fatalf("did not expect match against ErrDuplicateID")
	}
}

func TestClasses(t *testing.T) {
	tests := []struct {
		code          ErrorCode
		configuration bool
		resolution    bool
		construction  bool
	}{
		{CodeConfiguration, true, false, false},
		{CodeMissingModel, true, false, false},
		{CodeModelResolution, false, true, false},
		{CodeModelNotFound, false, true, false},
		{CodeIncompatibleModel, false, true, false},
		{CodeDuplicateID, false, false, true},
		{CodeUnknownNode, false, false, true},
		{CodePortConflict, false, false, true},
		{CodeInvalidGraph, false, false, true},
		{CodeUnsupportedCapability, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test", nil)
			if got := IsConfiguration(err); got != tt.configuration {
				t.Errorf("IsConfiguration = %v, want %v", got, tt.configuration)
			}
			if got := IsModelResolution(err); got != tt.resolution {
				t.Errorf("IsModelResolution = %v, want %v", got, tt.resolution)
			}
			if got := IsGraphConstruction(err); got != tt.construction {
				t.Errorf("IsGraphConstruction = %v, want %v", got, tt.construction)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Errorf("expected empty code for nil")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Errorf("expected CodeInternal for plain error")
	}
}

func TestMarshalJSON(t *testing.T) {
	e := New(CodeDuplicateID, "node exists", errors.New("noise"))
	e.WithContext("id", "noise")

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if result["code"] != "DUPLICATE_ID" {
		t.Errorf("expected code 'DUPLICATE_ID', got %v", result["code"])
	}
	if result["error"] != "noise" {
		t.Errorf("expected cause in error field, got %v", result["error"])
	}
}
