package cli

import (
	"context"
	"errors"
	"io"

	"github.com/pathforge/pathforge/ai"
	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/learningpath"
	"github.com/pathforge/pathforge/mcp"
	"github.com/pathforge/pathforge/orchestration"
	"github.com/pathforge/pathforge/resilience"
	"github.com/pathforge/pathforge/telemetry"
	"github.com/pathforge/pathforge/tools"
)

// App is the wired service: one of each component, built once at startup
// and shared by every request.
type App struct {
	Config       *core.Config
	Logger       core.Logger
	Registry     *core.ToolRegistry
	Resilient    *resilience.Client
	Tracer       *telemetry.Tracer
	Orchestrator *orchestration.Orchestrator
	// MCP is nil when no endpoint is configured.
	MCP *mcp.Client
}

// NewApp builds every component from cfg. Logs go to logOut.
func NewApp(ctx context.Context, cfg *core.Config, logOut io.Writer) (*App, error) {
	logger := core.NewLogger(cfg, logOut)

	sink, err := telemetry.NewSink(ctx, cfg.Telemetry, cfg.ServiceName, logger)
	if err != nil {
		return nil, err
	}
	tracer := telemetry.NewTracer(sink, telemetry.WithMaxPayload(cfg.Telemetry.MaxPayload))
	tracer.SetLogger(logger)

	resilientOpts := []func(*resilience.ResilienceDependencies){resilience.WithLogger(logger)}
	if otelSink, ok := sink.(*telemetry.OTelSink); ok {
		resilientOpts = append(resilientOpts, resilience.WithMeter(otelSink.Provider().Meter()))
	}
	resilient, err := resilience.CreateClient(cfg.Resilience, resilientOpts...)
	if err != nil {
		_ = sink.Close(ctx)
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Resilient: resilient,
		Tracer:    tracer,
	}

	toolOpts := tools.Options{Config: cfg.Tools}
	if cfg.MCP.Endpoint != "" {
		client, err := mcp.NewClient(mcp.ClientOptions{
			Endpoint:  cfg.MCP.Endpoint,
			Headers:   cfg.MCP.Headers,
			Resilient: resilient,
			Logger:    logger,
		})
		if err != nil {
			_ = sink.Close(ctx)
			return nil, err
		}
		app.MCP = client
		// Tools go through the bare session: the orchestrator already
		// wraps each tool call in the resilient client.
		toolOpts.MCP = client.Session()
	}

	registry := core.NewToolRegistry()
	registry.SetLogger(logger)
	if err := tools.RegisterDefaults(registry, toolOpts); err != nil {
		_ = sink.Close(ctx)
		return nil, err
	}
	registry.Freeze()
	app.Registry = registry

	summarizer, err := ai.NewSummarizer(cfg.AI, logger)
	if err != nil {
		_ = sink.Close(ctx)
		return nil, err
	}

	orchestrator, err := orchestration.NewOrchestrator(cfg.Pipeline, orchestration.Dependencies{
		Registry:   registry,
		Resilient:  resilient,
		Tracer:     tracer,
		Summarizer: summarizer,
		Generator: learningpath.NewGenerator(learningpath.Config{
			AverageMinutesPerResource: cfg.Pipeline.AverageMinutesPerResource,
			WeeklyHours:               cfg.Pipeline.WeeklyHours,
		}),
		Logger: logger,
	})
	if err != nil {
		_ = sink.Close(ctx)
		return nil, err
	}
	app.Orchestrator = orchestrator
	return app, nil
}

// TraceStore returns the sink as a trace store when it can serve recent
// traces, nil otherwise.
func (a *App) TraceStore() *telemetry.RedisSink {
	if s, ok := a.Tracer.Sink().(*telemetry.RedisSink); ok {
		return s
	}
	return nil
}

// Close ends the MCP session, flushes pending trace exports and releases
// the sink.
func (a *App) Close(ctx context.Context) error {
	var mcpErr error
	if a.MCP != nil {
		mcpErr = a.MCP.Close()
	}
	err := a.Tracer.Close(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.Logger.Warn("Trace export did not finish before shutdown", map[string]interface{}{
			"operation": "app_close",
		})
	}
	return errors.Join(mcpErr, err)
}
