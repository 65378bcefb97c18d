// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by ApiError.Is, mirroring the DBFS error codes.
var (
	ErrNotFound        = errors.New("resource does not exist")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrPermissionDenied = errors.New("permission denied")
)

// RateLimitedError signals the backend asked us to back off. It is retried
// forever by ApiClient and never counts against max_retries.
type RateLimitedError struct{}

func (e *RateLimitedError) Error() string { return "rate limited" }

// TransientError wraps a network/OS-level failure eligible for bounded retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError signals a malformed response (bad content-type, missing
// fields). It is fatal for the operation; no retry.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// ApiError represents a {error_code, message} response from the backend.
type ApiError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ApiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %s (%d)", e.Code, e.StatusCode)
}

// Is lets callers write errors.Is(err, ErrNotFound) etc. against the
// canonical DBFS error codes.
func (e *ApiError) Is(target error) bool {
	switch e.Code {
	case "RESOURCE_DOES_NOT_EXIST":
		return target == ErrNotFound
	case "RESOURCE_ALREADY_EXISTS":
		return target == ErrAlreadyExists
	case "PERMISSION_DENIED":
		return target == ErrPermissionDenied
	default:
		return false
	}
}

// CorruptionError is returned when a post-upload size check fails. The
// partial remote file has already been best-effort deleted by the caller.
type CorruptionError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corruption detected for %s: expected %d bytes, server reports %d", e.Path, e.Expected, e.Actual)
}

// OperationError is what interactive callers print as "Operation failed:
// <Kind> - <message>".
type OperationError struct {
	Kind string
	Err  error
}

func (e *OperationError) Error() string { return fmt.Sprintf("%s - %v", e.Kind, e.Err) }
func (e *OperationError) Unwrap() error { return e.Err }

// Classify wraps a raw error into the typed kind used for display, without
// altering its errors.Is/As behaviour.
func Classify(err error) *OperationError {
	if err == nil {
		return nil
	}
	var rl *RateLimitedError
	var tr *TransientError
	var ap *ApiError
	var pr *ProtocolError
	var co *CorruptionError
	switch {
	case errors.As(err, &rl):
		return &OperationError{Kind: "RateLimited", Err: err}
	case errors.As(err, &tr):
		return &OperationError{Kind: "Transient", Err: err}
	case errors.As(err, &ap):
		return &OperationError{Kind: "ApiError", Err: err}
	case errors.As(err, &pr):
		return &OperationError{Kind: "Protocol", Err: err}
	case errors.As(err, &co):
		return &OperationError{Kind: "Corruption", Err: err}
	default:
		return &OperationError{Kind: "Error", Err: err}
	}
}
