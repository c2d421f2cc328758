package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pathforge/pathforge/core"
)

// classifyStatus maps a provider API status onto the core taxonomy:
// 429 and 5xx are retryable network failures, everything else is a
// rejected request.
func classifyStatus(provider string, status int, err error) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return &core.NetworkError{Target: provider, Err: err}
	}
	return fmt.Errorf("%s rejected the request (status %d): %w: %v", provider, status, core.ErrInvalidInput, err)
}

func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &core.NetworkError{Target: provider, Err: err}
}
