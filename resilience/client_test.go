package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pathforge/pathforge/core"
)

// recordingSleep captures backoff delays instead of sleeping.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, clock *fakeClock, sleeper *recordingSleep) *Client {
	t.Helper()
	c, err := NewClient(DefaultClientConfig(),
		WithClock(clock.Now),
		WithSleep(sleeper.Sleep),
		WithJitterSource(func() float64 { return 0.5 }),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	sleeper := &recordingSleep{}
	c := newTestClient(t, newFakeClock(), sleeper)

	var calls int
	outcome, err := c.Invoke(context.Background(), "tool:web_metadata@go.dev", CallOptions{Class: ClassTool, Idempotent: true},
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &core.NetworkError{Target: "go.dev", Err: errors.New("reset")}
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if outcome.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", outcome.Attempts, calls)
	}
	// jitter source fixed at 0.5 → factor 0.75
	want := []time.Duration{750 * time.Millisecond, 1500 * time.Millisecond}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeper.delays, want)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleeper.delays[i], want[i])
		}
	}
	if got := c.Breaker("tool:web_metadata@go.dev").Failures(); got != 0 {
		t.Errorf("success must reset breaker failures, got %d", got)
	}
}

func TestInvokeExhaustsRetriesAsOneBreakerFailure(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	outcome, err := c.Invoke(context.Background(), "t", CallOptions{Idempotent: true}, func(ctx context.Context) error {
		return errUpstream
	})
	if !errors.Is(err, core.ErrConnectionFailed) {
		t.Fatalf("expected last error, got %v", err)
	}
	if outcome.Attempts != 4 {
		t.Errorf("attempts = %d, want 1 + 3 retries", outcome.Attempts)
	}
	if got := c.Breaker("t").Failures(); got != 1 {
		t.Errorf("breaker failures = %d, want 1", got)
	}
}

func TestInvokeNonIdempotentIsNotRetried(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	outcome, err := c.Invoke(context.Background(), "t", CallOptions{Idempotent: false}, func(ctx context.Context) error {
		return errUpstream
	})
	if err == nil || outcome.Attempts != 1 {
		t.Fatalf("attempts = %d err = %v, want one failed attempt", outcome.Attempts, err)
	}
}

func TestInvokeNonRetryableErrorReturnsImmediately(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	inputErr := core.NewToolError("INVALID_INPUT", core.CategoryInputError, core.ErrInvalidInput)
	outcome, err := c.Invoke(context.Background(), "t", CallOptions{Idempotent: true}, func(ctx context.Context) error {
		return inputErr
	})
	if !errors.Is(err, core.ErrInvalidInput) || outcome.Attempts != 1 {
		t.Fatalf("attempts = %d err = %v", outcome.Attempts, err)
	}
	if got := c.Breaker("t").Failures(); got != 0 {
		t.Errorf("input errors must not count, failures = %d", got)
	}
}

// Five consecutive failed invocations open the breaker; the sixth fails
// fast without touching the network.
func TestInvokeOpensCircuitAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	c := newTestClient(t, clock, &recordingSleep{})
	ctx := context.Background()
	target := "mcp:tools/call"

	var networkCalls atomic.Int32
	failing := func(ctx context.Context) error {
		networkCalls.Add(1)
		return errUpstream
	}

	for i := 0; i < 5; i++ {
		if _, err := c.Invoke(ctx, target, CallOptions{Class: ClassProtocol}, failing); err == nil {
			t.Fatalf("call %d: expected failure", i+1)
		}
	}
	if networkCalls.Load() != 5 {
		t.Fatalf("network calls = %d, want 5", networkCalls.Load())
	}

	outcome, err := c.Invoke(ctx, target, CallOptions{Class: ClassProtocol}, failing)
	if !errors.Is(err, core.ErrCircuitOpen) {
		t.Fatalf("6th call: expected ErrCircuitOpen, got %v", err)
	}
	if outcome.Attempts != 0 {
		t.Errorf("6th call attempts = %d, want 0", outcome.Attempts)
	}
	if networkCalls.Load() != 5 {
		t.Errorf("6th call reached the network")
	}

	// After recovery a single trial closes the circuit again
	clock.Advance(60 * time.Second)
	outcome, err = c.Invoke(ctx, target, CallOptions{Class: ClassProtocol}, succeed)
	if err != nil || outcome.Attempts != 1 {
		t.Fatalf("trial: attempts=%d err=%v", outcome.Attempts, err)
	}
	if state := c.BreakerStates()[target]; state != "closed" {
		t.Errorf("state after trial = %s, want closed", state)
	}
}

func TestInvokeBreakersAreIsolatedPerTarget(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = c.Invoke(ctx, "tool:web_metadata@down.example", CallOptions{}, fail)
	}
	if _, err := c.Invoke(ctx, "tool:web_metadata@up.example", CallOptions{}, succeed); err != nil {
		t.Fatalf("healthy target rejected: %v", err)
	}
}

func TestInvokeAttemptTimeout(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	outcome, err := c.Invoke(context.Background(), "slow", CallOptions{Timeout: 20 * time.Millisecond, Idempotent: true},
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	var te *core.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *core.TimeoutError, got %T %v", err, err)
	}
	if !errors.Is(err, core.ErrTimeout) {
		t.Error("timeout error should match ErrTimeout")
	}
	if outcome.Attempts != 4 {
		t.Errorf("timeouts are retryable, attempts = %d", outcome.Attempts)
	}
	if got := c.Breaker("slow").Failures(); got != 1 {
		t.Errorf("timeout counts toward the breaker, failures = %d", got)
	}
}

func TestInvokeCallerCancellationIsNotCounted(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	ctx, cancel := context.WithCancel(context.Background())
	outcome, err := c.Invoke(ctx, "t", CallOptions{Idempotent: true}, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", outcome.Attempts)
	}
	if got := c.Breaker("t").Failures(); got != 0 {
		t.Errorf("cancellation counted as failure")
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	outcome, err := c.Invoke(context.Background(), "t", CallOptions{Idempotent: true}, func(ctx context.Context) error {
		panic("nil pointer")
	})
	var te *core.ToolExecutionError
	if !errors.As(err, &te) || te.Category != core.CategoryInternal {
		t.Fatalf("expected internal tool error, got %v", err)
	}
	if outcome.Attempts != 1 {
		t.Errorf("panics are not retried, attempts = %d", outcome.Attempts)
	}
}

func TestCallReturnsValue(t *testing.T) {
	c := newTestClient(t, newFakeClock(), &recordingSleep{})

	v, outcome, err := Call(context.Background(), c, "t", CallOptions{}, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" || outcome.Attempts != 1 {
		t.Fatalf("Call = %q, %+v, %v", v, outcome, err)
	}
}

func TestCallOptionsAttemptTimeout(t *testing.T) {
	tests := []struct {
		opts CallOptions
		want time.Duration
	}{
		{CallOptions{Class: ClassProtocol}, 10 * time.Second},
		{CallOptions{Class: ClassProtocol, Timeout: time.Minute}, 30 * time.Second},
		{CallOptions{Class: ClassTool}, 30 * time.Second},
		{CallOptions{Class: ClassGeneration, Timeout: 10 * time.Minute}, 120 * time.Second},
		{CallOptions{Class: ClassLongGeneration}, 300 * time.Second},
		{CallOptions{Class: ClassGeneration, Timeout: 5 * time.Second}, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := tt.opts.AttemptTimeout(); got != tt.want {
			t.Errorf("%s timeout %v: got %v, want %v", tt.opts.Class, tt.opts.Timeout, got, tt.want)
		}
	}
}

func TestInvokeConcurrentFailuresNoLostUpdates(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.FailureThreshold = 1000
	cfg.Retry.MaxRetries = 0
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Invoke(context.Background(), "shared", CallOptions{}, fail)
		}()
	}
	wg.Wait()
	if got := c.Breaker("shared").Failures(); got != 100 {
		t.Errorf("failures = %d, want 100", got)
	}
}

func TestInvokeRateLimited(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.RatePerSecond = 1
	cfg.Burst = 1
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Invoke(context.Background(), "limited", CallOptions{}, succeed); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// The bucket is empty; a short deadline cannot be met
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	outcome, err := c.Invoke(ctx, "limited", CallOptions{}, succeed)
	if err == nil || outcome.Attempts != 0 {
		t.Fatalf("expected limiter rejection, attempts=%d err=%v", outcome.Attempts, err)
	}
	if got := c.Breaker("limited").Failures(); got != 0 {
		t.Errorf("limiter waits must not count, failures = %d", got)
	}
}

func TestCreateClientFromConfig(t *testing.T) {
	cfg := core.DefaultConfig().Resilience
	cfg.CircuitBreaker.FailureThreshold = 2

	c, err := CreateClient(cfg, WithLogger(&core.NoOpLogger{}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_, _ = c.Invoke(context.Background(), "x", CallOptions{}, fail)
	}
	if got := c.Breaker("x").State(); got != StateOpen {
		t.Errorf("state = %v, want open after threshold 2", got)
	}
}
