package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pathforge/pathforge/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	// JitterEnabled scales each delay by a uniform factor in [0.5, 1.0]
	JitterEnabled bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		JitterEnabled:   true,
	}
}

// Validate checks the configuration
func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative: %w", core.ErrInvalidConfiguration)
	}
	if c.BaseDelay < 0 || c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= base <= max: %w", core.ErrInvalidConfiguration)
	}
	if c.ExponentialBase < 1 {
		return fmt.Errorf("exponential base must be at least 1: %w", core.ErrInvalidConfiguration)
	}
	return nil
}

// Backoff returns the un-jittered delay before retry number retry
// (0-based): min(BaseDelay * ExponentialBase^retry, MaxDelay).
func (c *RetryConfig) Backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(retry))
	// Pow overflows to +Inf long before the loop count matters
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Delay returns the jittered delay before retry number retry. rnd must
// return values in [0, 1).
func (c *RetryConfig) Delay(retry int, rnd func() float64) time.Duration {
	d := c.Backoff(retry)
	if !c.JitterEnabled || rnd == nil {
		return d
	}
	return time.Duration(float64(d) * (0.5 + 0.5*rnd()))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
