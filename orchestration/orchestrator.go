// Package orchestration runs the learning path pipeline:
// PARSE → ENRICH → GENERATE_PATHS → SUMMARIZE → ASSEMBLE.
//
// Every I/O call goes through the resilient client and every stage call
// records exactly one span. Only PARSE failures and contract violations
// fail a run; enrichment and summarization problems degrade it to a
// partial result with diagnostics.
package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pathforge/pathforge/ai"
	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/learningpath"
	"github.com/pathforge/pathforge/resilience"
	"github.com/pathforge/pathforge/telemetry"
	"github.com/pathforge/pathforge/tools"
)

// Dependencies are the collaborators an Orchestrator is built from.
// Summarizer may be nil, which disables the SUMMARIZE stage.
type Dependencies struct {
	Registry   *core.ToolRegistry
	Resilient  *resilience.Client
	Tracer     *telemetry.Tracer
	Generator  *learningpath.Generator
	Summarizer ai.Summarizer
	Logger     core.Logger
}

// Orchestrator runs pipeline requests. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	config     core.PipelineConfig
	registry   *core.ToolRegistry
	resilient  *resilience.Client
	tracer     *telemetry.Tracer
	generator  *learningpath.Generator
	summarizer ai.Summarizer
	logger     core.Logger
	mcpEnabled bool
	now        func() time.Time
}

// NewOrchestrator validates deps and builds an orchestrator. A missing
// Generator is built from cfg.
func NewOrchestrator(cfg core.PipelineConfig, deps Dependencies) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Resilient == nil || deps.Tracer == nil {
		return nil, core.NewFrameworkError("orchestration.New", "dependency",
			fmt.Errorf("registry, resilient client and tracer are required: %w", core.ErrMissingConfiguration))
	}
	if _, err := deps.Registry.Resolve(tools.AwesomeListParserName); err != nil {
		return nil, core.NewFrameworkError("orchestration.New", "tool", err)
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = 4
	}
	if cfg.MaxResources <= 0 {
		cfg.MaxResources = 50
	}
	if cfg.AverageMinutesPerResource <= 0 {
		cfg.AverageMinutesPerResource = 30
	}
	generator := deps.Generator
	if generator == nil {
		generator = learningpath.NewGenerator(learningpath.Config{
			AverageMinutesPerResource: cfg.AverageMinutesPerResource,
			WeeklyHours:               cfg.WeeklyHours,
		})
	}
	_, err := deps.Registry.Resolve(tools.RepositoryReadmeName)

	o := &Orchestrator{
		config:     cfg,
		registry:   deps.Registry,
		resilient:  deps.Resilient,
		tracer:     deps.Tracer,
		generator:  generator,
		summarizer: deps.Summarizer,
		mcpEnabled: err == nil,
		now:        time.Now,
	}
	o.SetLogger(deps.Logger)
	return o, nil
}

// SetLogger sets the logger, tagged with the orchestration component.
func (o *Orchestrator) SetLogger(logger core.Logger) {
	o.logger = core.ComponentLogger(logger, "pathforge/orchestration")
}

// Config returns the pipeline configuration in effect.
func (o *Orchestrator) Config() core.PipelineConfig { return o.config }

// run carries the state of one pipeline execution.
type run struct {
	req    Request
	trace  *telemetry.Trace
	result *Result
}

func (r *run) diagnose(stage Stage, target, message string) {
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Stage: stage, Target: target, Message: message})
}

// Run executes one request. The returned Result is never nil and always
// carries a status and the sealed trace summary. The error is non-nil
// only when the run failed: a *core.ParseError from PARSE, an invariant
// violation, or an invalid request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := o.now()
	if req.Format == "" {
		req.Format = FormatMarkdown
	}

	r := &run{
		req:    req,
		trace:  o.tracer.StartTrace(req.RequestID),
		result: &Result{Status: StatusSuccess, Stage: StageParse, Format: req.Format},
	}
	r.result.RequestID = r.trace.RequestID

	if req.Format != FormatMarkdown && req.Format != FormatJSON {
		err := core.NewFrameworkError("orchestration.Run", "request",
			fmt.Errorf("unsupported format %q: %w", req.Format, core.ErrInvalidInput))
		return o.fail(ctx, r, StageParse, err, start)
	}

	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	o.logger.Info("Pipeline started", map[string]interface{}{
		"operation":  "pipeline_run",
		"request_id": r.result.RequestID,
		"source_url": req.SourceURL,
		"enrich":     req.Enrich,
		"summarize":  req.Summarize,
		"format":     req.Format,
	})

	parsed, err := o.parse(ctx, r)
	if err != nil {
		return o.fail(ctx, r, StageParse, err, start)
	}
	r.result.Parsed = &parsed

	r.result.Stage = StageEnrich
	r.result.Resources = o.enrich(ctx, r, parsed.Resources)

	r.result.Stage = StageGeneratePaths
	plan, err := o.generate(r, parsed.Resources)
	if err != nil {
		return o.fail(ctx, r, StageGeneratePaths, err, start)
	}
	r.result.Paths = plan.Paths

	r.result.Stage = StageSummarize
	overview := o.summarize(ctx, r, parsed, plan)

	r.result.Stage = StageAssemble
	if err := o.assemble(r, parsed, plan, overview); err != nil {
		return o.fail(ctx, r, StageAssemble, err, start)
	}

	r.result.Stage = StageDone
	if len(r.result.Diagnostics) > 0 {
		r.result.Status = StatusPartial
	}
	o.finish(ctx, r, start)
	return r.result, nil
}

// fail seals the trace with status failed. Only spans recorded so far are
// kept, so a PARSE failure leaves exactly the PARSE span.
func (o *Orchestrator) fail(ctx context.Context, r *run, stage Stage, err error, start time.Time) (*Result, error) {
	r.result.Status = StatusFailed
	r.result.Stage = StageFailed
	r.diagnose(stage, "", err.Error())
	o.logger.Error("Pipeline failed", map[string]interface{}{
		"operation":  "pipeline_run",
		"request_id": r.result.RequestID,
		"stage":      string(stage),
		"error":      err.Error(),
	})
	o.finish(ctx, r, start)
	return r.result, err
}

func (o *Orchestrator) finish(ctx context.Context, r *run, start time.Time) {
	r.result.Duration = o.now().Sub(start)
	summary, err := o.tracer.Finalize(r.trace, r.result.Status)
	if err != nil {
		// The trace is private to this run; a sealed trace here is a bug.
		o.logger.Error("Trace finalize failed", map[string]interface{}{
			"operation":  "pipeline_run",
			"request_id": r.result.RequestID,
			"error":      err.Error(),
		})
		return
	}
	r.result.Trace = &summary
	o.tracer.Export(ctx, summary)

	o.logger.Info("Pipeline finished", map[string]interface{}{
		"operation":   "pipeline_run",
		"request_id":  r.result.RequestID,
		"status":      r.result.Status,
		"diagnostics": len(r.result.Diagnostics),
		"spans":       summary.SpanCount,
		"duration_ms": r.result.Duration.Milliseconds(),
	})
}

// callTool runs a registered tool through the resilient client and
// records one span for the whole invocation.
func (o *Orchestrator) callTool(ctx context.Context, r *run, stage Stage, name, target string, input map[string]interface{}) (map[string]interface{}, error) {
	desc, err := o.registry.Descriptor(name)
	if err != nil {
		err = core.AsToolError(name, err)
		o.record(r, telemetry.SpanInput{
			Name: name, Stage: string(stage), Kind: telemetry.KindTool,
			Start: o.now(), Input: input, Err: err,
			Attributes: map[string]string{"target": target},
		})
		return nil, err
	}

	start := o.now()
	var output map[string]interface{}
	outcome, err := o.resilient.Invoke(ctx, target, resilience.CallOptions{
		Class:      resilience.ClassTool,
		Idempotent: desc.Idempotent,
	}, func(ctx context.Context) error {
		res := o.registry.Execute(ctx, name, input)
		if !res.Success {
			return res.Error()
		}
		output = res.Output
		return nil
	})

	o.record(r, telemetry.SpanInput{
		Name:       name,
		Stage:      string(stage),
		Kind:       telemetry.KindTool,
		Start:      start,
		Duration:   outcome.Duration,
		Input:      input,
		Output:     output,
		Success:    err == nil,
		Err:        err,
		Attempts:   outcome.Attempts,
		Attributes: map[string]string{"target": target},
	})
	return output, err
}

func (o *Orchestrator) record(r *run, span telemetry.SpanInput) {
	if err := o.tracer.RecordSpan(r.trace, span); err != nil {
		o.logger.Error("Span dropped", map[string]interface{}{
			"operation":  "record_span",
			"request_id": r.result.RequestID,
			"span":       span.Name,
			"error":      err.Error(),
		})
	}
}

func (o *Orchestrator) parse(ctx context.Context, r *run) (ParsedListData, error) {
	name := tools.AwesomeListParserName
	output, err := o.callTool(ctx, r, StageParse, name, "tool:"+name, map[string]interface{}{
		"url":           r.req.SourceURL,
		"max_resources": o.config.MaxResources,
	})
	if err != nil {
		return ParsedListData{}, &core.ParseError{Source: r.req.SourceURL, Err: err}
	}

	var parsed ParsedListData
	if err := decodeOutput(output, &parsed); err != nil {
		return ParsedListData{}, &core.ParseError{Source: r.req.SourceURL, Err: err}
	}
	return parsed, nil
}

func (o *Orchestrator) generate(r *run, resources []learningpath.Resource) (learningpath.Plan, error) {
	start := o.now()
	plan, err := o.generator.Generate(resources)
	out := map[string]interface{}{"paths": len(plan.Paths)}
	o.record(r, telemetry.SpanInput{
		Name:     "learning_path_generator",
		Stage:    string(StageGeneratePaths),
		Kind:     telemetry.KindInternal,
		Start:    start,
		Duration: o.now().Sub(start),
		Input:    map[string]interface{}{"resources": len(resources)},
		Output:   out,
		Success:  err == nil,
		Err:      err,
		Attempts: 1,
	})
	return plan, err
}

// summarize returns the guide overview. It falls back to the parsed
// context when summarization is off, impossible or fails.
func (o *Orchestrator) summarize(ctx context.Context, r *run, parsed ParsedListData, plan learningpath.Plan) string {
	fallback := fallbackOverview(parsed)
	if !r.req.Summarize || o.summarizer == nil {
		return fallback
	}
	target := "llm:" + o.summarizer.Name()
	if err := ctx.Err(); err != nil {
		r.diagnose(StageSummarize, target, "summarization skipped: "+deadlineMessage(err))
		return fallback
	}

	req := ai.Request{
		Topic:          parsed.Topic,
		Description:    parsed.Description,
		ContextSummary: parsed.ContextSummary,
		Language:       parsed.Language,
	}
	for _, p := range plan.Paths {
		outline := ai.PathOutline{Name: p.Name, Difficulty: p.Difficulty.String(), Hours: p.EstimatedHours}
		for _, res := range p.Resources {
			outline.Resources = append(outline.Resources, res.Title)
		}
		req.Paths = append(req.Paths, outline)
	}

	class := generationClass(o.summarizer)
	start := o.now()
	text, outcome, err := resilience.Call(ctx, o.resilient, target, resilience.CallOptions{
		Class:      class,
		Idempotent: true,
	}, func(ctx context.Context) (string, error) {
		stream, err := o.summarizer.Summarize(ctx, req)
		if err != nil {
			return "", err
		}
		return ai.Collect(ctx, stream)
	})

	o.record(r, telemetry.SpanInput{
		Name:       o.summarizer.Name(),
		Stage:      string(StageSummarize),
		Kind:       telemetry.KindLLM,
		Start:      start,
		Duration:   outcome.Duration,
		Input:      map[string]interface{}{"topic": req.Topic, "paths": len(req.Paths)},
		Output:     text,
		Success:    err == nil,
		Err:        err,
		Attempts:   outcome.Attempts,
		Attributes: map[string]string{"target": target, "class": class.String()},
	})
	if err != nil {
		r.diagnose(StageSummarize, target, "summarization failed, using list description: "+err.Error())
		return fallback
	}
	return text
}

// generationClass picks the attempt timeout class. Hosted models stream
// for minutes; the extractive summarizer answers in-process.
func generationClass(s ai.Summarizer) resilience.CallClass {
	if s.Name() == ai.ProviderExtractive {
		return resilience.ClassGeneration
	}
	return resilience.ClassLongGeneration
}

func (o *Orchestrator) assemble(r *run, parsed ParsedListData, plan learningpath.Plan, overview string) error {
	start := o.now()
	guide := buildGuide(parsed, plan, r.result.Resources, overview, o.config.AverageMinutesPerResource)
	output, err := Render(guide, r.req.Format)
	o.record(r, telemetry.SpanInput{
		Name:     "guide_assembler",
		Stage:    string(StageAssemble),
		Kind:     telemetry.KindInternal,
		Start:    start,
		Duration: o.now().Sub(start),
		Input:    map[string]interface{}{"format": r.req.Format, "steps": len(guide.Steps)},
		Output:   map[string]interface{}{"bytes": len(output)},
		Success:  err == nil,
		Err:      err,
		Attempts: 1,
	})
	if err != nil {
		return err
	}
	r.result.Guide = &guide
	r.result.Output = output
	return nil
}

func fallbackOverview(parsed ParsedListData) string {
	switch {
	case parsed.ContextSummary != "":
		return parsed.ContextSummary
	case parsed.Description != "":
		return parsed.Description
	default:
		return fmt.Sprintf("A guided introduction to %s.", parsed.Topic)
	}
}

func deadlineMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "pipeline deadline exceeded"
	}
	return "pipeline cancelled"
}

// decodeOutput converts a tool's output map into a typed value.
func decodeOutput(output map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encode tool output: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode tool output: %w", err)
	}
	return nil
}
