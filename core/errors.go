package core

import (
	"context"
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Tool registry errors
	ErrDuplicateTool  = errors.New("tool already registered")
	ErrUnknownTool    = errors.New("unknown tool")
	ErrRegistryFrozen = errors.New("tool registry is frozen")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Pipeline errors
	ErrParse              = errors.New("source list could not be parsed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvariantViolation = errors.New("internal invariant violation")

	// Telemetry errors
	ErrTraceSealed = errors.New("trace is sealed")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitOpen        = errors.New("circuit breaker is open")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
)

// FrameworkError provides structured error information with context
// It implements the error interface and supports error wrapping
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "registry.Register")
	Kind    string // Error kind (e.g., "tool", "config", "trace")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// ParseError is fatal to a pipeline run: no stage can proceed without the
// structural input the parse stage produces.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

// Unwrap exposes both the cause and ErrParse to errors.Is.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// NetworkError marks a transport level failure talking to Target.
// Network errors are retryable and feed the circuit breaker.
type NetworkError struct {
	Target string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Target, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrConnectionFailed, e.Err}
}

// TimeoutError is returned when a single attempt exceeds its deadline.
type TimeoutError struct {
	Target  string
	Timeout string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to %s timed out after %s", e.Target, e.Timeout)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeout}
	}
	return []error{ErrTimeout, e.Err}
}

// IsRetryable checks if an error is retryable
// Retryable errors are transient network or availability issues, and tool
// errors that declare themselves retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var toolErr *ToolExecutionError
	if errors.As(err, &toolErr) {
		return toolErr.Retryable
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	if errors.Is(err, ErrUnknownTool) {
		return true
	}
	var toolErr *ToolExecutionError
	return errors.As(err, &toolErr) && toolErr.Category == CategoryNotFound
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError checks if an error is a programming-contract violation
func IsStateError(err error) bool {
	return errors.Is(err, ErrTraceSealed) ||
		errors.Is(err, ErrRegistryFrozen) ||
		errors.Is(err, ErrInvariantViolation)
}

// IsInputError reports whether err was caused by a malformed request rather
// than by the callee being unavailable.
func IsInputError(err error) bool {
	if errors.Is(err, ErrInvalidInput) {
		return true
	}
	var toolErr *ToolExecutionError
	return errors.As(err, &toolErr) && toolErr.Category == CategoryInputError
}
