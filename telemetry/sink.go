package telemetry

import (
	"context"
	"fmt"

	"github.com/pathforge/pathforge/core"
)

// Sink receives sealed trace summaries. Implementations must be safe for
// concurrent use; the tracer exports from background goroutines.
type Sink interface {
	Name() string
	Export(ctx context.Context, summary Summary) error
	Close(ctx context.Context) error
}

// NoopSink discards every summary. It is the "disabled" sink.
type NoopSink struct{}

func (NoopSink) Name() string                          { return "disabled" }
func (NoopSink) Export(context.Context, Summary) error { return nil }
func (NoopSink) Close(context.Context) error           { return nil }

// LogSink writes one structured log entry per trace and one debug entry
// per span.
type LogSink struct {
	logger core.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger core.Logger) *LogSink {
	return &LogSink{logger: core.ComponentLogger(logger, "pathforge/traces")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Export(ctx context.Context, summary Summary) error {
	stages := make(map[string]interface{}, len(summary.StageDurations))
	for stage, d := range summary.StageDurations {
		stages[stage] = d.Milliseconds()
	}
	s.logger.Info("Pipeline trace", map[string]interface{}{
		"operation":         "trace_summary",
		"request_id":        summary.RequestID,
		"status":            summary.Status,
		"span_count":        summary.SpanCount,
		"failed_spans":      summary.FailedSpans,
		"total_duration_ms": summary.TotalDuration.Milliseconds(),
		"stage_duration_ms": stages,
	})
	for _, span := range summary.Spans {
		fields := map[string]interface{}{
			"operation":   "trace_span",
			"request_id":  summary.RequestID,
			"span":        span.Name,
			"stage":       span.Stage,
			"kind":        string(span.Kind),
			"success":     span.Success,
			"attempts":    span.Attempts,
			"duration_ms": span.Duration.Milliseconds(),
		}
		if span.Error != "" {
			fields["error"] = span.Error
		}
		s.logger.Debug("Span", fields)
	}
	return nil
}

func (s *LogSink) Close(context.Context) error { return nil }

// NewSink builds the sink selected by cfg.Sink. The selection is explicit
// configuration; every sink satisfies the same interface.
func NewSink(ctx context.Context, cfg core.TelemetryConfig, serviceName string, logger core.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "disabled":
		return NoopSink{}, nil
	case "log":
		return NewLogSink(logger), nil
	case "redis":
		return NewRedisSink(ctx, RedisSinkOptions{
			RedisURL:   cfg.RedisURL,
			Key:        cfg.Key,
			MaxEntries: cfg.MaxEntries,
			TTL:        cfg.TTL,
			Logger:     logger,
		})
	case "otel":
		provider, err := NewOTelProvider(ctx, ProviderConfig{
			ServiceName: serviceName,
			Exporter:    cfg.Exporter,
			Endpoint:    cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return NewOTelSink(provider), nil
	default:
		return nil, fmt.Errorf("unknown telemetry sink %q: %w", cfg.Sink, core.ErrInvalidConfiguration)
	}
}
