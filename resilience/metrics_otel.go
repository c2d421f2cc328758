package resilience

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	MetricCircuitBreakerSuccess     = "pathforge.circuit_breaker.success"
	MetricCircuitBreakerFailure     = "pathforge.circuit_breaker.failure"
	MetricCircuitBreakerRejected    = "pathforge.circuit_breaker.rejected"
	MetricCircuitBreakerStateChange = "pathforge.circuit_breaker.state_change"
)

// OTelMetricsCollector implements MetricsCollector using OpenTelemetry
type OTelMetricsCollector struct {
	ctx         context.Context
	success     metric.Int64Counter
	failure     metric.Int64Counter
	rejected    metric.Int64Counter
	stateChange metric.Int64Counter
}

// NewOTelMetricsCollector creates a collector on meter. A nil meter uses
// the global meter provider.
func NewOTelMetricsCollector(ctx context.Context, meter metric.Meter) (*OTelMetricsCollector, error) {
	if meter == nil {
		meter = otel.Meter("pathforge/resilience")
	}
	o := &OTelMetricsCollector{ctx: ctx}

	var err error
	if o.success, err = meter.Int64Counter(MetricCircuitBreakerSuccess,
		metric.WithDescription("Calls that succeeded through a circuit breaker")); err != nil {
		return nil, fmt.Errorf("create success counter: %w", err)
	}
	if o.failure, err = meter.Int64Counter(MetricCircuitBreakerFailure,
		metric.WithDescription("Failures counted by a circuit breaker")); err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}
	if o.rejected, err = meter.Int64Counter(MetricCircuitBreakerRejected,
		metric.WithDescription("Calls rejected by an open circuit breaker")); err != nil {
		return nil, fmt.Errorf("create rejection counter: %w", err)
	}
	if o.stateChange, err = meter.Int64Counter(MetricCircuitBreakerStateChange,
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, fmt.Errorf("create state change counter: %w", err)
	}
	return o, nil
}

// RecordSuccess records a successful circuit breaker execution
func (o *OTelMetricsCollector) RecordSuccess(name string) {
	o.success.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("result", "success"),
	))
}

// RecordFailure records a failed circuit breaker execution
func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	o.failure.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("error_type", errorType),
		attribute.String("result", "failure"),
	))
}

// RecordStateChange records a circuit breaker state transition
func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	o.stateChange.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	))
}

// RecordRejection records when circuit breaker rejects a request
func (o *OTelMetricsCollector) RecordRejection(name string) {
	o.rejected.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("result", "rejected"),
	))
}
