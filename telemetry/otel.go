package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pathforge/pathforge/core"
)

// ProviderConfig configures the OpenTelemetry provider.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is "otlp" (gRPC), "otlphttp" or "stdout".
	Exporter string
	// Endpoint is host:port, optionally prefixed with http:// or https://.
	Endpoint string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer

	// SpanExporter overrides Exporter; spans are exported synchronously.
	SpanExporter sdktrace.SpanExporter
	// MetricReader overrides the metric pipeline.
	MetricReader sdkmetric.Reader
}

// OTelProvider owns the tracer and meter providers
type OTelProvider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
}

// NewOTelProvider creates a new OpenTelemetry provider and installs it as
// the global tracer and meter provider, so instrumented HTTP transports
// propagate trace context.
func NewOTelProvider(ctx context.Context, cfg ProviderConfig) (*OTelProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pathforge"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "1.0.0"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	host, insecure := splitEndpoint(cfg.Endpoint)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithSyncer(cfg.SpanExporter))
	} else {
		exporter, err := newSpanExporter(ctx, cfg, host, insecure)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	switch {
	case cfg.MetricReader != nil:
		meterOpts = append(meterOpts, sdkmetric.WithReader(cfg.MetricReader))
	case cfg.Exporter == "otlphttp" && host != "":
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
		if insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:        tp.Tracer("pathforge"),
		meter:         mp.Meter("pathforge"),
		traceProvider: tp,
		meterProvider: mp,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg ProviderConfig, host string, insecure bool) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlphttp":
		opts := []otlptracehttp.Option{}
		if host != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(host))
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case "", "otlp":
		if host == "" {
			host, insecure = "localhost:4317", true
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(host)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration)
	}
}

// splitEndpoint strips an http(s) scheme. Plain host:port endpoints are
// treated as insecure, which is what local collectors expect.
func splitEndpoint(endpoint string) (host string, insecure bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), false
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), true
	default:
		return endpoint, true
	}
}

// Tracer returns the OpenTelemetry tracer.
func (o *OTelProvider) Tracer() trace.Tracer { return o.tracer }

// Meter returns the OpenTelemetry meter, used for circuit breaker metrics.
func (o *OTelProvider) Meter() metric.Meter { return o.meter }

// TracerProvider returns the SDK tracer provider.
func (o *OTelProvider) TracerProvider() trace.TracerProvider { return o.traceProvider }

// Shutdown gracefully shuts down the telemetry provider
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	return errors.Join(o.traceProvider.Shutdown(ctx), o.meterProvider.Shutdown(ctx))
}

// OTelSink replays sealed traces as OpenTelemetry spans with their
// recorded timestamps: one root span per pipeline run and one child per
// recorded span.
type OTelSink struct {
	provider *OTelProvider
}

// NewOTelSink creates a sink exporting through provider.
func NewOTelSink(provider *OTelProvider) *OTelSink {
	return &OTelSink{provider: provider}
}

// Provider returns the underlying provider.
func (s *OTelSink) Provider() *OTelProvider { return s.provider }

func (s *OTelSink) Name() string { return "otel" }

func (s *OTelSink) Export(ctx context.Context, summary Summary) error {
	tracer := s.provider.Tracer()

	ctx, root := tracer.Start(ctx, "pathforge.pipeline",
		trace.WithTimestamp(summary.StartTime),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("pathforge.request_id", summary.RequestID),
			attribute.String("pathforge.status", summary.Status),
			attribute.Int("pathforge.span_count", summary.SpanCount),
			attribute.Int("pathforge.failed_spans", summary.FailedSpans),
		))

	for _, span := range summary.Spans {
		attrs := []attribute.KeyValue{
			attribute.String("pathforge.stage", span.Stage),
			attribute.String("pathforge.kind", string(span.Kind)),
			attribute.Int("pathforge.attempts", span.Attempts),
			attribute.String("pathforge.span_id", span.SpanID),
		}
		for k, v := range span.Attributes {
			attrs = append(attrs, attribute.String(k, v))
		}

		_, child := tracer.Start(ctx, span.Name,
			trace.WithTimestamp(span.StartTime),
			trace.WithSpanKind(otelKind(span.Kind)),
			trace.WithAttributes(attrs...))
		if span.Success {
			child.SetStatus(codes.Ok, "")
		} else {
			child.SetStatus(codes.Error, span.Error)
			child.RecordError(errors.New(span.Error), trace.WithTimestamp(span.EndTime))
		}
		child.End(trace.WithTimestamp(span.EndTime))
	}

	if summary.Status == StatusFailed {
		root.SetStatus(codes.Error, "pipeline failed")
	}
	root.End(trace.WithTimestamp(summary.EndTime))
	return nil
}

// Close flushes and shuts down the provider.
func (s *OTelSink) Close(ctx context.Context) error {
	return s.provider.Shutdown(ctx)
}

func otelKind(kind SpanKind) trace.SpanKind {
	switch kind {
	case KindTool, KindClient, KindLLM:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}
