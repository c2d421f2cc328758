package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pathforge/pathforge/core"
)

// CallClass selects default and maximum per-attempt timeouts.
type CallClass int

const (
	// ClassTool is a reference tool call (HTTP fetch, metadata lookup)
	ClassTool CallClass = iota
	// ClassProtocol is a JSON-RPC call to the external MCP endpoint
	ClassProtocol
	// ClassGeneration is a regular LLM generation
	ClassGeneration
	// ClassLongGeneration is an LLM generation expected to stream for minutes
	ClassLongGeneration
)

func (c CallClass) String() string {
	switch c {
	case ClassProtocol:
		return "protocol"
	case ClassTool:
		return "tool"
	case ClassGeneration:
		return "generation"
	case ClassLongGeneration:
		return "long_generation"
	default:
		return "unknown"
	}
}

// DefaultTimeout is the per-attempt timeout used when CallOptions.Timeout is zero.
func (c CallClass) DefaultTimeout() time.Duration {
	switch c {
	case ClassProtocol:
		return 10 * time.Second
	case ClassLongGeneration:
		return 300 * time.Second
	default:
		return 30 * time.Second
	}
}

// MaxTimeout caps any requested per-attempt timeout.
func (c CallClass) MaxTimeout() time.Duration {
	switch c {
	case ClassProtocol:
		return 30 * time.Second
	case ClassLongGeneration:
		return 300 * time.Second
	default:
		return 120 * time.Second
	}
}

// CallOptions describes one logical invocation.
type CallOptions struct {
	Class CallClass
	// Timeout applies to each attempt, clamped to Class.MaxTimeout.
	Timeout time.Duration
	// Idempotent calls may be retried. Non-idempotent calls get exactly
	// one attempt.
	Idempotent bool
}

// AttemptTimeout resolves the effective per-attempt timeout.
func (o CallOptions) AttemptTimeout() time.Duration {
	t := o.Timeout
	if t <= 0 {
		t = o.Class.DefaultTimeout()
	}
	if max := o.Class.MaxTimeout(); t > max {
		t = max
	}
	return t
}

// Outcome describes how an invocation went, independent of its result.
type Outcome struct {
	Target string
	// Attempts is 1 + retries performed; 0 when the breaker rejected the call.
	Attempts int
	Duration time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Retry RetryConfig

	// BreakerEnabled turns per-target circuit breaking on.
	BreakerEnabled   bool
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// RatePerSecond > 0 enables a token bucket per target.
	RatePerSecond float64
	Burst         int
}

// DefaultClientConfig returns the default retry and breaker settings.
func DefaultClientConfig() ClientConfig {
	breaker := DefaultConfig()
	return ClientConfig{
		Retry:            *DefaultRetryConfig(),
		BreakerEnabled:   true,
		FailureThreshold: breaker.FailureThreshold,
		RecoveryTimeout:  breaker.RecoveryTimeout,
		Burst:            1,
	}
}

// Client wraps outbound calls with per-attempt timeouts, retry with
// jittered exponential backoff, and a circuit breaker per target.
//
// Breaker state is the only state shared across pipeline runs. The map
// of breakers is guarded by an RWMutex, each breaker by its own mutex.
type Client struct {
	config ClientConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*rate.Limiter

	logger  core.Logger
	metrics MetricsCollector
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
	rand   func() float64
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger core.Logger) ClientOption {
	return func(c *Client) { c.SetLogger(logger) }
}

// WithMetrics sets the breaker metrics collector.
func WithMetrics(m MetricsCollector) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock replaces the breaker clock.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithJitterSource replaces the jitter random source. fn must return
// values in [0, 1).
func WithJitterSource(fn func() float64) ClientOption {
	return func(c *Client) { c.rand = fn }
}

// NewClient creates a resilient client.
func NewClient(config ClientConfig, opts ...ClientOption) (*Client, error) {
	if err := config.Retry.Validate(); err != nil {
		return nil, err
	}
	if config.BreakerEnabled {
		breakerCfg := CircuitBreakerConfig{FailureThreshold: config.FailureThreshold, RecoveryTimeout: config.RecoveryTimeout}
		if err := breakerCfg.Validate(); err != nil {
			return nil, err
		}
	}
	if config.RatePerSecond < 0 {
		return nil, fmt.Errorf("rate must not be negative: %w", core.ErrInvalidConfiguration)
	}
	if config.Burst < 1 {
		config.Burst = 1
	}

	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := &Client{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
		logger:   &core.NoOpLogger{},
		metrics:  &noopMetrics{},
		now:      time.Now,
		sleep:    sleepContext,
		rand:     src.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetLogger sets the logger provider
func (c *Client) SetLogger(logger core.Logger) {
	c.logger = core.ComponentLogger(logger, "pathforge/resilience")
}

// Breaker returns the breaker for target, creating it on first use.
// It returns nil when circuit breaking is disabled.
func (c *Client) Breaker(target string) *CircuitBreaker {
	if !c.config.BreakerEnabled {
		return nil
	}

	c.mu.RLock()
	cb, ok := c.breakers[target]
	c.mu.RUnlock()
	if ok {
		return cb
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[target]; ok {
		return cb
	}
	cb, err := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             target,
		FailureThreshold: c.config.FailureThreshold,
		RecoveryTimeout:  c.config.RecoveryTimeout,
		Logger:           c.logger,
		Metrics:          c.metrics,
		Now:              c.now,
	})
	if err != nil {
		// config was validated in NewClient
		panic(err)
	}
	c.breakers[target] = cb
	return cb
}

// BreakerStates returns the state of every breaker created so far.
func (c *Client) BreakerStates() map[string]string {
	c.mu.RLock()
	names := make([]string, 0, len(c.breakers))
	for name := range c.breakers {
		names = append(names, name)
	}
	c.mu.RUnlock()

	states := make(map[string]string, len(names))
	for _, name := range names {
		states[name] = c.Breaker(name).GetState()
	}
	return states
}

func (c *Client) limiter(target string) *rate.Limiter {
	if c.config.RatePerSecond <= 0 {
		return nil
	}
	c.mu.RLock()
	l, ok := c.limiters[target]
	c.mu.RUnlock()
	if ok {
		return l
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[target]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(c.config.RatePerSecond), c.config.Burst)
	c.limiters[target] = l
	return l
}

func (c *Client) jitter() float64 {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.rand()
}

// Invoke runs fn as one logical invocation against target.
//
// The breaker is consulted once; a rejection returns an error wrapping
// core.ErrCircuitOpen with zero attempts. Each attempt runs under its own
// timeout, and deadline expiry (the attempt's or the caller's) surfaces as
// a *core.TimeoutError. Retryable failures of idempotent calls are retried
// up to MaxRetries times while ctx is live, and an invocation that still
// fails counts as a single breaker failure. Cancellation by the caller is
// not counted. The last attempt's error is returned.
func (c *Client) Invoke(ctx context.Context, target string, opts CallOptions, fn func(ctx context.Context) error) (Outcome, error) {
	start := c.now()
	outcome := Outcome{Target: target}
	finish := func(err error) (Outcome, error) {
		outcome.Duration = c.now().Sub(start)
		return outcome, err
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	breaker := c.Breaker(target)
	var admission Admission
	if breaker != nil {
		a, err := breaker.Allow()
		if err != nil {
			return finish(err)
		}
		admission = a
	}

	maxRetries := c.config.Retry.MaxRetries
	if !opts.Idempotent {
		maxRetries = 0
	}
	timeout := opts.AttemptTimeout()
	limiter := c.limiter(target)

	var lastErr error
	gaveUp := false
	for retry := 0; ; retry++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				gaveUp = true
				break
			}
		}

		outcome.Attempts++
		lastErr = c.attempt(ctx, target, timeout, fn)
		if lastErr == nil || ctx.Err() != nil {
			break
		}
		if !core.IsRetryable(lastErr) || retry >= maxRetries {
			break
		}

		delay := c.config.Retry.Delay(retry, c.jitter)
		c.logger.Debug("Retrying call", map[string]interface{}{
			"operation": "resilient_retry",
			"target":    target,
			"attempt":   outcome.Attempts,
			"delay_ms":  delay.Milliseconds(),
			"error":     lastErr.Error(),
		})
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	if breaker != nil {
		switch {
		case lastErr == nil:
			breaker.Record(admission, nil)
		case gaveUp, errors.Is(ctx.Err(), context.Canceled):
			// The caller gave up; the target's health is unknown.
			breaker.Release(admission)
		default:
			breaker.Record(admission, lastErr)
		}
	}

	if lastErr != nil {
		c.logger.Warn("Call failed", map[string]interface{}{
			"operation": "resilient_invoke",
			"target":    target,
			"attempts":  outcome.Attempts,
			"error":     lastErr.Error(),
		})
	}
	return finish(lastErr)
}

// attempt runs fn once under the per-attempt deadline. fn must honour ctx.
func (c *Client) attempt(ctx context.Context, target string, timeout time.Duration, fn func(ctx context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := safeCall(actx, target, fn)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		var te *core.TimeoutError
		if !errors.As(err, &te) {
			return &core.TimeoutError{Target: target, Timeout: timeout.String(), Err: err}
		}
	}
	return err
}

// safeCall converts a panic in fn into a non-retryable internal error.
func safeCall(ctx context.Context, target string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			te := core.NewToolError("PANIC", core.CategoryInternal,
				fmt.Errorf("panic calling %s: %v\n%s", target, r, debug.Stack()))
			err = te
		}
	}()
	return fn(ctx)
}

// Call is Invoke for functions that return a value.
func Call[T any](ctx context.Context, c *Client, target string, opts CallOptions, fn func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var result T
	outcome, err := c.Invoke(ctx, target, opts, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, outcome, err
}
