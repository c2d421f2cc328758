package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge/core"
)

// SpanKind classifies what a span measured.
type SpanKind string

const (
	// KindTool is a registry tool invocation
	KindTool SpanKind = "tool"
	// KindClient is a call to the external protocol endpoint
	KindClient SpanKind = "client"
	// KindLLM is a model generation
	KindLLM SpanKind = "llm"
	// KindInternal is pure in-process work
	KindInternal SpanKind = "internal"
)

// Trace status values
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// SpanInput is what a caller reports about one logical invocation.
type SpanInput struct {
	Name     string
	Stage    string
	Kind     SpanKind
	Start    time.Time
	Duration time.Duration
	Input    interface{}
	Output   interface{}
	Success  bool
	Err      error
	// Attempts is 1 + retries; 0 when the call was rejected before any attempt
	Attempts   int
	Attributes map[string]string
}

// Span is one recorded execution, with payloads already sanitized.
type Span struct {
	SpanID     string            `json:"span_id"`
	TraceID    string            `json:"trace_id"`
	Name       string            `json:"name"`
	Stage      string            `json:"stage,omitempty"`
	Kind       SpanKind          `json:"kind"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration"`
	Input      interface{}       `json:"input,omitempty"`
	Output     interface{}       `json:"output,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Trace collects the spans of one pipeline run. Spans are kept in
// completion order. A finalized trace is sealed.
type Trace struct {
	RequestID string
	StartTime time.Time

	mu     sync.Mutex
	spans  []Span
	sealed bool
}

// Spans returns a copy of the recorded spans.
func (t *Trace) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Span(nil), t.spans...)
}

// Len returns the number of recorded spans.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Sealed reports whether the trace has been finalized.
func (t *Trace) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Summary is the sealed, serializable record handed to sinks.
type Summary struct {
	RequestID      string                   `json:"request_id"`
	Status         string                   `json:"status"`
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	TotalDuration  time.Duration            `json:"total_duration"`
	SpanCount      int                      `json:"span_count"`
	FailedSpans    int                      `json:"failed_spans"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	Spans          []Span                   `json:"spans"`
}

// Tracer records spans into traces and exports sealed summaries.
type Tracer struct {
	sink       Sink
	logger     core.Logger
	now        func() time.Time
	maxPayload int

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// TracerOption customizes a Tracer.
type TracerOption func(*Tracer)

// WithClock replaces the tracer clock.
func WithClock(now func() time.Time) TracerOption {
	return func(t *Tracer) { t.now = now }
}

// WithMaxPayload sets the string truncation limit for span payloads.
func WithMaxPayload(n int) TracerOption {
	return func(t *Tracer) {
		if n > 0 {
			t.maxPayload = n
		}
	}
}

// NewTracer creates a tracer exporting to sink. A nil sink disables export.
func NewTracer(sink Sink, opts ...TracerOption) *Tracer {
	if sink == nil {
		sink = NoopSink{}
	}
	t := &Tracer{
		sink:       sink,
		logger:     &core.NoOpLogger{},
		now:        time.Now,
		maxPayload: DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetLogger sets the logger provider
func (t *Tracer) SetLogger(logger core.Logger) {
	t.logger = core.ComponentLogger(logger, "pathforge/telemetry")
}

// Sink returns the configured sink.
func (t *Tracer) Sink() Sink { return t.sink }

// StartTrace opens a trace. An empty requestID gets a generated UUID.
func (t *Tracer) StartTrace(requestID string) *Trace {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Trace{RequestID: requestID, StartTime: t.now()}
}

// RecordSpan appends one span, successful or not. It fails with
// core.ErrTraceSealed once the trace is finalized.
func (t *Tracer) RecordSpan(trace *Trace, in SpanInput) error {
	if trace == nil {
		return core.NewFrameworkError("tracer.RecordSpan", "trace", core.ErrInvariantViolation)
	}

	start := in.Start
	if start.IsZero() {
		start = t.now().Add(-in.Duration)
	}
	span := Span{
		SpanID:     uuid.NewString(),
		TraceID:    trace.RequestID,
		Name:       in.Name,
		Stage:      in.Stage,
		Kind:       in.Kind,
		StartTime:  start,
		EndTime:    start.Add(in.Duration),
		Duration:   in.Duration,
		Input:      Sanitize(in.Input, t.maxPayload),
		Output:     Sanitize(in.Output, t.maxPayload),
		Success:    in.Success,
		Attempts:   in.Attempts,
		Attributes: copyAttributes(in.Attributes),
	}
	if span.Kind == "" {
		span.Kind = KindInternal
	}
	if in.Err != nil {
		span.Error = truncate(in.Err.Error(), t.maxPayload)
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()
	if trace.sealed {
		return &core.FrameworkError{Op: "tracer.RecordSpan", Kind: "trace", ID: trace.RequestID, Err: core.ErrTraceSealed}
	}
	trace.spans = append(trace.spans, span)
	return nil
}

// Finalize seals the trace and computes its summary. Finalizing twice
// fails with core.ErrTraceSealed.
func (t *Tracer) Finalize(trace *Trace, status string) (Summary, error) {
	if trace == nil {
		return Summary{}, core.NewFrameworkError("tracer.Finalize", "trace", core.ErrInvariantViolation)
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()
	if trace.sealed {
		return Summary{}, &core.FrameworkError{Op: "tracer.Finalize", Kind: "trace", ID: trace.RequestID, Err: core.ErrTraceSealed}
	}
	trace.sealed = true

	end := t.now()
	summary := Summary{
		RequestID:      trace.RequestID,
		Status:         status,
		StartTime:      trace.StartTime,
		EndTime:        end,
		TotalDuration:  end.Sub(trace.StartTime),
		SpanCount:      len(trace.spans),
		StageDurations: make(map[string]time.Duration),
		Spans:          append([]Span(nil), trace.spans...),
	}
	for _, s := range trace.spans {
		if !s.Success {
			summary.FailedSpans++
		}
		if s.Stage != "" {
			summary.StageDurations[s.Stage] += s.Duration
		}
	}
	return summary, nil
}

// Export hands summary to the sink in the background. Sink failures are
// logged and never reach the caller. The export outlives ctx cancellation
// but not its values. Exports after Flush has started are dropped.
func (t *Tracer) Export(ctx context.Context, summary Summary) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn("Trace export dropped after shutdown", map[string]interface{}{
			"operation":  "trace_export",
			"sink":       t.sink.Name(),
			"request_id": summary.RequestID,
		})
		return
	}
	t.pending.Add(1)
	t.mu.Unlock()

	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	go func() {
		defer t.pending.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("Trace sink panicked", map[string]interface{}{
					"operation":  "trace_export",
					"sink":       t.sink.Name(),
					"request_id": summary.RequestID,
					"panic":      r,
				})
			}
		}()

		if err := t.sink.Export(exportCtx, summary); err != nil {
			t.logger.Warn("Trace export failed", map[string]interface{}{
				"operation":  "trace_export",
				"sink":       t.sink.Name(),
				"request_id": summary.RequestID,
				"error":      err.Error(),
			})
			return
		}
		t.logger.Debug("Trace exported", map[string]interface{}{
			"operation":  "trace_export",
			"sink":       t.sink.Name(),
			"request_id": summary.RequestID,
			"spans":      summary.SpanCount,
		})
	}()
}

// Flush stops accepting exports and waits for in-flight ones or until ctx
// is done.
func (t *Tracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending exports and closes the sink.
func (t *Tracer) Close(ctx context.Context) error {
	flushErr := t.Flush(ctx)
	return errors.Join(flushErr, t.sink.Close(ctx))
}

const exportTimeout = 10 * time.Second

func copyAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
