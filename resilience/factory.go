package resilience

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/pathforge/pathforge/core"
)

// ResilienceDependencies holds optional dependencies
type ResilienceDependencies struct {
	Logger core.Logger
	Meter  metric.Meter
}

// WithLogger creates dependency injection option
func WithLogger(logger core.Logger) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Logger = logger
	}
}

// WithMeter creates dependency injection option. Breaker events are
// exported as OpenTelemetry counters on meter.
func WithMeter(meter metric.Meter) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Meter = meter
	}
}

// ClientConfigFrom maps the resilience section of the service config.
func ClientConfigFrom(cfg core.ResilienceConfig) ClientConfig {
	return ClientConfig{
		Retry: RetryConfig{
			MaxRetries:      cfg.Retry.MaxRetries,
			BaseDelay:       cfg.Retry.BaseDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			ExponentialBase: cfg.Retry.ExponentialBase,
			JitterEnabled:   true,
		},
		BreakerEnabled:   cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.CircuitBreaker.RecoveryTimeout,
		RatePerSecond:    cfg.RateLimit.RatePerSecond,
		Burst:            cfg.RateLimit.Burst,
	}
}

// CreateClient builds the resilient client from service config with
// proper dependency injection.
func CreateClient(cfg core.ResilienceConfig, opts ...func(*ResilienceDependencies)) (*Client, error) {
	deps := ResilienceDependencies{}
	for _, opt := range opts {
		opt(&deps)
	}

	var clientOpts []ClientOption
	if deps.Logger != nil {
		clientOpts = append(clientOpts, WithClientLogger(deps.Logger))
	}
	if deps.Meter != nil {
		collector, err := NewOTelMetricsCollector(context.Background(), deps.Meter)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, WithMetrics(collector))
	}

	client, err := NewClient(ClientConfigFrom(cfg), clientOpts...)
	if err != nil {
		return nil, err
	}

	client.logger.Info("Resilient client created", map[string]interface{}{
		"operation":         "resilient_client_creation",
		"max_retries":       cfg.Retry.MaxRetries,
		"breaker_enabled":   cfg.CircuitBreaker.Enabled,
		"failure_threshold": cfg.CircuitBreaker.FailureThreshold,
		"recovery_timeout":  cfg.CircuitBreaker.RecoveryTimeout.String(),
		"rate_per_second":   cfg.RateLimit.RatePerSecond,
		"metrics_enabled":   deps.Meter != nil,
	})
	return client, nil
}
