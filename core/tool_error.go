package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies tool errors for retry and degradation decisions.
type ErrorCategory string

const (
	// CategoryInputError indicates the request payload was malformed
	// Example: missing url, payload does not match the input schema
	CategoryInputError ErrorCategory = "INPUT_ERROR"

	// CategoryNotFound indicates the requested resource doesn't exist
	CategoryNotFound ErrorCategory = "NOT_FOUND"

	// CategoryRateLimit indicates the remote quota was exceeded
	CategoryRateLimit ErrorCategory = "RATE_LIMIT"

	// CategoryServiceError indicates the tool's backend failed.
	// Usually transient - retry with same payload after backoff
	CategoryServiceError ErrorCategory = "SERVICE_ERROR"

	// CategoryOutputError indicates the tool produced output that does not
	// match its declared output schema
	CategoryOutputError ErrorCategory = "OUTPUT_ERROR"

	// CategoryInternal indicates the tool faulted (panic or contract breach)
	CategoryInternal ErrorCategory = "INTERNAL_ERROR"
)

// ToolExecutionError is the only error type a tool invocation surfaces.
// The registry converts anything else a tool returns (or panics with) into one.
type ToolExecutionError struct {
	// Tool is the registered tool name
	Tool string `json:"tool"`

	// Code is a machine-readable error identifier (e.g., "FETCH_FAILED")
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Category groups errors for routing decisions
	Category ErrorCategory `json:"category"`

	// Retryable tells the resilient client whether another attempt may succeed
	Retryable bool `json:"retryable"`

	// Details provides additional context, e.g. "status_code", "url"
	Details map[string]string `json:"details,omitempty"`

	// Err is the underlying cause, if any
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ToolExecutionError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("tool %s: [%s] %s", e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// NewToolError builds a ToolExecutionError with retryability derived from category.
func NewToolError(code string, category ErrorCategory, err error) *ToolExecutionError {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	return &ToolExecutionError{
		Code:      code,
		Message:   msg,
		Category:  category,
		Retryable: category == CategoryServiceError || category == CategoryRateLimit,
		Err:       err,
	}
}

// AsToolError converts err into a ToolExecutionError attributed to tool.
// Network and timeout failures stay retryable; everything unknown is treated
// as a service error so the resilient client may retry it.
func AsToolError(tool string, err error) *ToolExecutionError {
	if err == nil {
		return nil
	}
	var toolErr *ToolExecutionError
	if errors.As(err, &toolErr) {
		if toolErr.Tool == "" {
			clone := *toolErr
			clone.Tool = tool
			return &clone
		}
		return toolErr
	}
	category := CategoryServiceError
	code := "EXECUTION_FAILED"
	switch {
	case errors.Is(err, ErrInvalidInput):
		category, code = CategoryInputError, "INVALID_INPUT"
	case errors.Is(err, ErrTimeout):
		code = "TIMEOUT"
	case errors.Is(err, ErrConnectionFailed):
		code = "NETWORK"
	}
	te := NewToolError(code, category, err)
	te.Tool = tool
	return te
}

// CategoryForStatus maps an HTTP status returned by a tool's backend onto an
// error category.
//
// Mapping:
//   - 400, 422 → CategoryInputError
//   - 404, 410 → CategoryNotFound
//   - 429      → CategoryRateLimit
//   - 5xx      → CategoryServiceError
//   - other    → CategoryInputError
func CategoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= http.StatusInternalServerError:
		return CategoryServiceError
	default:
		return CategoryInputError
	}
}
