// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed errors for graph construction and its collaborators.
//
// Every error carries a Code. Codes group into four classes: configuration errors
// (fatal, caused by the request), model resolution errors (fatal, caused by the
// resolver), graph construction errors (fatal, an assembly bug) and unsupported
// capabilities (never returned, only reported as diagnostics).
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies errors for callers and telemetry.
type ErrorCode string

const (
	// CodeInternal indicates an unexpected failure.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates a missing or invalid request field.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeMissingModel indicates no main model was selected.
	CodeMissingModel ErrorCode = "MISSING_MODEL"

	// CodeModelResolution indicates the model lookup failed.
	CodeModelResolution ErrorCode = "MODEL_RESOLUTION"

	// CodeModelNotFound indicates the model lookup found nothing for the key.
	CodeModelNotFound ErrorCode = "MODEL_NOT_FOUND"

	// CodeIncompatibleModel indicates the resolved model family cannot be built.
	CodeIncompatibleModel ErrorCode = "INCOMPATIBLE_MODEL"

	// CodeDuplicateID indicates a node id is already taken.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodeUnknownNode indicates a reference to a node that does not exist.
	CodeUnknownNode ErrorCode = "UNKNOWN_NODE"

	// CodePortConflict indicates a second edge into an already connected input port.
	CodePortConflict ErrorCode = "PORT_CONFLICT"

	// CodeInvalidGraph indicates a finished graph failed validation.
	CodeInvalidGraph ErrorCode = "INVALID_GRAPH"

	// CodeUnsupportedCapability marks an optional subsystem skipped for the active model.
	CodeUnsupportedCapability ErrorCode = "UNSUPPORTED_CAPABILITY"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrConfiguration         = &Error{Code: CodeConfiguration}
	ErrMissingModel          = &Error{Code: CodeMissingModel}
	ErrModelResolution       = &Error{Code: CodeModelResolution}
	ErrModelNotFound         = &Error{Code: CodeModelNotFound}
	ErrIncompatibleModel     = &Error{Code: CodeIncompatibleModel}
	ErrDuplicateID           = &Error{Code: CodeDuplicateID}
	ErrUnknownNode           = &Error{Code: CodeUnknownNode}
	ErrPortConflict          = &Error{Code: CodePortConflict}
	ErrInvalidGraph          = &Error{Code: CodeInvalidGraph}
	ErrUnsupportedCapability = &Error{Code: CodeUnsupportedCapability}
)

// Error is a typed error with context for logs and callers.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Err     string         `json:"error,omitempty"`
		Context map[string]any `json:"context,omitempty"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
		Context: e.Context,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
	}
}

// Newf creates a new Error without a cause and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsConfiguration reports whether err is a request configuration error.
func IsConfiguration(err error) bool {
	switch CodeOf(err) {
	case CodeConfiguration, CodeMissingModel:
		return true
	}
	return false
}

// IsModelResolution reports whether err came from resolving the model.
func IsModelResolution(err error) bool {
	switch CodeOf(err) {
	case CodeModelResolution, CodeModelNotFound, CodeIncompatibleModel:
		return true
	}
	return false
}

// IsGraphConstruction reports whether err is an internal graph assembly failure.
func IsGraphConstruction(err error) bool {
	switch CodeOf(err) {
	case CodeDuplicateID, CodeUnknownNode, CodePortConflict, CodeInvalidGraph:
		return true
	}
	return false
}
