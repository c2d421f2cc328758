package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathforge/pathforge/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single trial request
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts infrastructure errors, not caller errors
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}

	// Malformed requests - DON'T count (the target is healthy)
	if core.IsInputError(err) {
		return false
	}

	// Configuration errors - DON'T count (user error)
	if core.IsConfigurationError(err) {
		return false
	}

	// Not found errors - DON'T count (user error)
	if core.IsNotFound(err) {
		return false
	}

	// State errors - DON'T count (programming error)
	if core.IsStateError(err) {
		return false
	}

	// Context cancellation - DON'T count (client gave up)
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}

	// All other errors count as failures (network, timeout, 5xx, faults)
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker, usually the call target
	Name string

	// FailureThreshold is the number of consecutive counted failures that
	// opens the circuit
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open after the last
	// failure before a trial call is admitted
	RecoveryTimeout time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector

	// Now is the clock; tests replace it to step through recovery.
	Now func() time.Time
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
		Now:              time.Now,
	}
}

// Validate checks the configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d: %w", c.FailureThreshold, core.ErrInvalidConfiguration)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive, got %v: %w", c.RecoveryTimeout, core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker is a consecutive-failure breaker for one call target.
//
// CLOSED passes calls through and counts consecutive failures. Reaching
// FailureThreshold opens the circuit. OPEN rejects calls until
// RecoveryTimeout has elapsed since the last failure; the next call then
// moves the circuit to HALF_OPEN and runs as the only trial. The trial's
// success closes the circuit, its failure reopens it with a fresh timer.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failures      int
	lastFailure   time.Time
	trialInFlight bool
	listeners     []func(name string, from, to CircuitState)

	totalExecutions    atomic.Uint64
	rejectedExecutions atomic.Uint64
}

// NewCircuitBreaker creates a breaker. Zero-valued optional fields fall
// back to DefaultConfig.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	defaults := DefaultConfig()
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = defaults.ErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaults.Metrics
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CircuitBreaker{config: &cfg, state: StateClosed}, nil
}

// SetLogger sets the logger provider. The component is always
// "pathforge/resilience".
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	cb.mu.Lock()
	cb.config.Logger = core.ComponentLogger(logger, "pathforge/resilience")
	cb.mu.Unlock()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Admission is the ticket returned by Allow. It must be passed to exactly
// one of Record or Release.
type Admission struct {
	trial bool
}

// Trial reports whether the admitted call is the half-open trial.
func (a Admission) Trial() bool { return a.trial }

// Allow decides whether a call may proceed. A rejected call gets an error
// wrapping core.ErrCircuitOpen and must not be attempted.
func (cb *CircuitBreaker) Allow() (Admission, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalExecutions.Add(1)
	switch cb.state {
	case StateClosed:
		return Admission{}, nil
	case StateOpen:
		if cb.config.Now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.transitionLocked(StateHalfOpen)
			cb.trialInFlight = true
			return Admission{trial: true}, nil
		}
	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			return Admission{trial: true}, nil
		}
	}

	cb.rejectedExecutions.Add(1)
	cb.config.Metrics.RecordRejection(cb.config.Name)
	cb.config.Logger.Info("Circuit breaker rejected execution", map[string]interface{}{
		"operation":     "circuit_breaker_reject",
		"name":          cb.config.Name,
		"current_state": cb.state.String(),
		"reason":        "circuit_open",
	})
	return Admission{}, fmt.Errorf("circuit breaker '%s' is %s: %w", cb.config.Name, cb.state, core.ErrCircuitOpen)
}

// Record reports the result of an admitted call. Errors the classifier
// ignores neither count as failures nor reset the failure counter.
func (cb *CircuitBreaker) Record(a Admission, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if a.trial {
		cb.trialInFlight = false
	}

	if err == nil {
		cb.config.Metrics.RecordSuccess(cb.config.Name)
		cb.failures = 0
		if a.trial {
			cb.transitionLocked(StateClosed)
		}
		return
	}

	if !cb.config.ErrorClassifier(err) {
		cb.config.Logger.Debug("Error not counted by circuit breaker", map[string]interface{}{
			"operation": "circuit_breaker_ignore",
			"name":      cb.config.Name,
			"error":     err.Error(),
		})
		return
	}

	cb.config.Metrics.RecordFailure(cb.config.Name, errorType(err))
	cb.failures++
	cb.lastFailure = cb.config.Now()

	switch {
	case cb.state == StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold:
		cb.transitionLocked(StateOpen)
	}
}

// Release returns an admission without an outcome, e.g. when the caller
// gave up before the call ran. A released trial lets the next call in.
func (cb *CircuitBreaker) Release(a Admission) {
	if !a.trial {
		return
	}
	cb.mu.Lock()
	cb.trialInFlight = false
	cb.mu.Unlock()
}

// Execute runs fn under breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	a, err := cb.Allow()
	if err != nil {
		return err
	}
	err = safeCall(ctx, cb.config.Name, fn)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		cb.Release(a)
		return err
	}
	cb.Record(a, err)
	return err
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}

	cb.config.Metrics.RecordStateChange(cb.config.Name, from.String(), to.String())
	cb.config.Logger.Warn("Circuit breaker state changed", map[string]interface{}{
		"operation":  "circuit_breaker_state_change",
		"name":       cb.config.Name,
		"from_state": from.String(),
		"to_state":   to.String(),
		"failures":   cb.failures,
	})

	for _, listener := range cb.listeners {
		go listener(cb.config.Name, from, to)
	}
}

// AddStateChangeListener registers a callback invoked asynchronously on
// every state transition.
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, listener)
	cb.mu.Unlock()
}

// State returns the stored state. OPEN turns into HALF_OPEN lazily, on the
// first Allow after the recovery timeout.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetState returns the state name.
func (cb *CircuitBreaker) GetState() string {
	return cb.State().String()
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// GetMetrics returns a snapshot for health endpoints and logs.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	m := map[string]interface{}{
		"name":                cb.config.Name,
		"state":               cb.state.String(),
		"failures":            cb.failures,
		"failure_threshold":   cb.config.FailureThreshold,
		"total_executions":    cb.totalExecutions.Load(),
		"rejected_executions": cb.rejectedExecutions.Load(),
		"trial_in_flight":     cb.trialInFlight,
	}
	if !cb.lastFailure.IsZero() {
		m["last_failure"] = cb.lastFailure
	}
	return m
}

// Reset forces the breaker back to CLOSED.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
	cb.failures = 0
	cb.trialInFlight = false
	cb.lastFailure = time.Time{}
}

func errorType(err error) string {
	var te *core.TimeoutError
	var ne *core.NetworkError
	var toolErr *core.ToolExecutionError
	switch {
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &ne):
		return "network"
	case errors.As(err, &toolErr):
		return string(toolErr.Category)
	default:
		return "error"
	}
}
