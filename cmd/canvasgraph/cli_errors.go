// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the canvasgraph CLI.
package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// CLIError wraps a canvasgraph Error with a user hint.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{
		Err:  e,
		Hint: hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}

	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// PrintError writes the error to w, as a JSON object when asJSON is set.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if e.Err == nil {
		fmt.Fprintln(w, "Error: unknown error")
		return
	}
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{
				"code":    e.Err.Code,
				"message": detail(e.Err),
				"hint":    e.Hint,
				"context": e.Err.Context,
			},
		})
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Err.Code), detail(e.Err))
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

func detail(e *errors.Error) string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// WrapError turns any error into a CLIError with a hint chosen by its code.
func WrapError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.New(errors.CodeInternal, "command failed", err)
	}
	return NewCLIError(e, hintFor(e.Code))
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeConfiguration:
		return "check the canvas state and config values"
	case errors.CodeMissingModel:
		return "set params.model.key in the canvas state"
	case errors.CodeModelNotFound:
		return "run 'canvasgraph models list' to see registered models"
	case errors.CodeIncompatibleModel:
		return "choose a main model of base sd-1, sd-2 or sdxl"
	case errors.CodeModelResolution:
		return "check models.source and models.path"
	case errors.CodeInvalidGraph, errors.CodePortConflict, errors.CodeUnknownNode, errors.CodeDuplicateID:
		return "run 'canvasgraph validate' on the graph for details"
	}
	return ""
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeConfiguration, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	return NewCLIError(e, "run 'canvasgraph help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeConfiguration, "configuration error", err)
	hint := "check your configuration values"
	if configPath != "" {
		e = e.WithContext("config_path", configPath)
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(e, hint)
}

// WrapConnectionError wraps an MCP connection error with CLI hints.
func WrapConnectionError(err error, addr string) *CLIError {
	e := errors.New(errors.CodeInternal, "connection failed", err).
		WithContext("address", addr)
	return NewCLIError(e, fmt.Sprintf("check that 'canvasgraph mcp serve --http' is running at %s", addr))
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeConfiguration:
		return "Configuration"
	case errors.CodeMissingModel:
		return "Missing Model"
	case errors.CodeModelResolution:
		return "Model Resolution"
	case errors.CodeModelNotFound:
		return "Model Not Found"
	case errors.CodeIncompatibleModel:
		return "Incompatible Model"
	case errors.CodeDuplicateID:
		return "Duplicate ID"
	case errors.CodeUnknownNode:
		return "Unknown Node"
	case errors.CodePortConflict:
		return "Port Conflict"
	case errors.CodeInvalidGraph:
		return "Invalid Graph"
	case errors.CodeUnsupportedCapability:
		return "Unsupported Capability"
	default:
		return string(code)
	}
}
