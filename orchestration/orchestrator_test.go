package orchestration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge/ai"
	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/mcp"
	"github.com/pathforge/pathforge/resilience"
	"github.com/pathforge/pathforge/telemetry"
	"github.com/pathforge/pathforge/tools"
)

type section struct {
	name  string
	paths []string
}

// listServer serves an awesome list plus the pages it links to.
type listServer struct {
	*httptest.Server
	list   string
	broken atomic.Int64
	slow   atomic.Int64
}

func newListServer(t *testing.T) *listServer {
	t.Helper()
	ls := &listServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/list.md":
			_, _ = w.Write([]byte(ls.list))
		case r.URL.Path == "/garbage":
			_, _ = w.Write([]byte("<html><body>nothing to see here</body></html>"))
		case r.URL.Path == "/oembed":
			_, _ = w.Write([]byte(`{"title":"Concurrency is not Parallelism","author_name":"gojp","provider_name":"YouTube"}`))
		case strings.HasPrefix(r.URL.Path, "/broken/"):
			ls.broken.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/slow/"):
			ls.slow.Add(1)
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			name := strings.TrimPrefix(r.URL.Path, "/")
			body := strings.Repeat("word ", 400)
			fmt.Fprintf(w, `<html><head><title>Page %s</title><meta name="description" content="About %s"></head><body>%s</body></html>`, name, name, body)
		}
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listServer) setList(topic string, sections ...section) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Awesome %s\n\n> A curated list of %s resources.\n\n", topic, topic)
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.name)
		for _, p := range s.paths {
			link := p
			if !strings.HasPrefix(p, "http") {
				link = ls.URL + p
			}
			fmt.Fprintf(&b, "- [%s](%s) - Notes on %s.\n", strings.Trim(p, "/"), link, s.name)
		}
		b.WriteString("\n")
	}
	ls.list = b.String()
}

type harness struct {
	orchestrator *Orchestrator
	resilient    *resilience.Client
	sink         *recordingSink
}

type recordingSink struct {
	telemetry.NoopSink
	mu        sync.Mutex
	summaries []telemetry.Summary
}

func (s *recordingSink) Export(_ context.Context, summary telemetry.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

type harnessOptions struct {
	pipeline   core.PipelineConfig
	summarizer ai.Summarizer
	mcp        mcp.Caller
}

func newHarness(t *testing.T, ls *listServer, opts harnessOptions) *harness {
	t.Helper()

	cfg := resilience.DefaultClientConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	rc, err := resilience.NewClient(cfg, resilience.WithSleep(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)

	toolsCfg := core.DefaultConfig().Tools
	toolsCfg.VideoOEmbedURL = ls.URL + "/oembed"
	reg := core.NewToolRegistry()
	require.NoError(t, tools.RegisterDefaults(reg, tools.Options{Config: toolsCfg, HTTPClient: ls.Client(), MCP: opts.mcp}))
	reg.Freeze()

	sink := &recordingSink{}
	tracer := telemetry.NewTracer(sink)
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })

	pipeline := opts.pipeline
	if pipeline.MaxParallelism == 0 {
		pipeline.MaxParallelism = 4
	}
	o, err := NewOrchestrator(pipeline, Dependencies{
		Registry:   reg,
		Resilient:  rc,
		Tracer:     tracer,
		Summarizer: opts.summarizer,
	})
	require.NoError(t, err)
	return &harness{orchestrator: o, resilient: rc, sink: sink}
}

var tenResources = []section{
	{name: "Getting Started", paths: []string{"/intro-1", "/intro-2", "/intro-3"}},
	{name: "Web Frameworks", paths: []string{"/web-1", "/web-2", "/web-3"}},
	{name: "Databases", paths: []string{"/db-1", "/db-2"}},
	{name: "Testing", paths: []string{"/test-1", "/test-2"}},
}

func spansIn(summary *telemetry.Summary, stage Stage) []telemetry.Span {
	var out []telemetry.Span
	for _, s := range summary.Spans {
		if s.Stage == string(stage) {
			out = append(out, s)
		}
	}
	return out
}

func TestRunAllEnrichmentSucceeds(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go", tenResources...)
	h := newHarness(t, ls, harnessOptions{})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, StageDone, result.Stage)
	assert.Empty(t, result.Diagnostics)
	assert.Len(t, result.Paths, 4)
	assert.LessOrEqual(t, len(result.Paths), 5)
	assert.Equal(t, 10, strings.Count(result.Output, "### Step "))
	assert.NotContains(t, result.Output, degradedStatus)
	assert.True(t, strings.HasPrefix(result.Output, "# Guided Learning Path: Go\n"))
	assert.Contains(t, result.Output, "## Overview")
	assert.Contains(t, result.Output, "- **Type:** Article")
	assert.Contains(t, result.Output, "- **Estimated Time:** 2 minutes")
	assert.Contains(t, result.Output, "- **Why This Matters:** Part of the Getting Started path (Beginner).")

	require.Len(t, result.Resources, 10)
	for _, r := range result.Resources {
		assert.False(t, r.Degraded)
		assert.Equal(t, tools.WebMetadataName, r.Tool)
		assert.Equal(t, "Page "+strings.TrimPrefix(r.Resource.Title, "/"), r.Title)
	}

	// Summarization is off: N enrichment spans plus parse, generate and assemble
	require.NotNil(t, result.Trace)
	assert.Equal(t, 13, result.Trace.SpanCount)
	assert.Equal(t, StatusSuccess, result.Trace.Status)
	assert.Len(t, spansIn(result.Trace, StageParse), 1)
	assert.Len(t, spansIn(result.Trace, StageEnrich), 10)
	assert.Len(t, spansIn(result.Trace, StageGeneratePaths), 1)
	assert.Len(t, spansIn(result.Trace, StageAssemble), 1)
	assert.Empty(t, spansIn(result.Trace, StageSummarize))

	// Parse comes first and assembly last; enrichment spans sit in between
	// in completion order
	assert.Equal(t, string(StageParse), result.Trace.Spans[0].Stage)
	assert.Equal(t, string(StageAssemble), result.Trace.Spans[12].Stage)
	for _, s := range spansIn(result.Trace, StageEnrich) {
		assert.Equal(t, 1, s.Attempts)
		assert.Equal(t, "tool:web_metadata@127.0.0.1", s.Attributes["target"])
	}

	require.NoError(t, h.orchestrator.tracer.Flush(context.Background()))
	assert.Equal(t, 1, h.sink.count())
}

func TestRunDegradesFailedEnrichment(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go",
		section{name: "Getting Started", paths: []string{"/intro-1", "/broken/1", "/intro-2"}},
		section{name: "Web Frameworks", paths: []string{"/web-1", "/broken/2", "/web-2"}},
		section{name: "Databases", paths: []string{"/db-1", "/broken/3"}},
		section{name: "Testing", paths: []string{"/test-1", "/test-2"}},
	)
	h := newHarness(t, ls, harnessOptions{})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	require.Len(t, result.Diagnostics, 3)
	for _, d := range result.Diagnostics {
		assert.Equal(t, StageEnrich, d.Stage)
		assert.Equal(t, "tool:web_metadata@127.0.0.1", d.Target)
		assert.Contains(t, d.Message, "HTTP_503")
	}
	assert.Equal(t, 10, strings.Count(result.Output, "### Step "))
	assert.Equal(t, 3, strings.Count(result.Output, "- **Status:** degraded (raw data only)"))

	degraded := 0
	for _, r := range result.Resources {
		if r.Degraded {
			degraded++
			assert.True(t, strings.HasPrefix(r.Resource.Title, "broken/"))
			assert.Equal(t, r.Resource.Title, r.Title, "degraded resources keep raw data")
			assert.NotEmpty(t, r.Error)
		}
	}
	assert.Equal(t, 3, degraded)

	// Each failure is one span carrying all of its attempts
	assert.Equal(t, int64(12), ls.broken.Load())
	failed := 0
	for _, s := range spansIn(result.Trace, StageEnrich) {
		if !s.Success {
			failed++
			assert.Equal(t, 4, s.Attempts)
		}
	}
	assert.Equal(t, 3, failed)
	assert.Equal(t, 13, result.Trace.SpanCount)
	assert.Equal(t, StatusPartial, result.Trace.Status)
	assert.Equal(t, resilience.StateClosed, h.resilient.Breaker("tool:web_metadata@127.0.0.1").State())
}

func TestRunFailsWhenSourceCannotBeParsed(t *testing.T) {
	ls := newListServer(t)
	h := newHarness(t, ls, harnessOptions{summarizer: ai.ExtractiveSummarizer{}})

	for _, src := range []string{ls.URL + "/garbage", "ftp://example.com/list.md", ls.URL + "/broken/list"} {
		t.Run(src, func(t *testing.T) {
			result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: src, Enrich: true, Summarize: true})
			require.Error(t, err)

			var pe *core.ParseError
			require.ErrorAs(t, err, &pe)
			assert.ErrorIs(t, err, core.ErrParse)
			assert.Equal(t, src, pe.Source)

			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, StageFailed, result.Stage)
			assert.Empty(t, result.Output)
			require.Len(t, result.Diagnostics, 1)
			assert.Equal(t, StageParse, result.Diagnostics[0].Stage)

			require.NotNil(t, result.Trace)
			assert.Equal(t, StatusFailed, result.Trace.Status)
			require.Equal(t, 1, result.Trace.SpanCount)
			assert.Equal(t, string(StageParse), result.Trace.Spans[0].Stage)
			assert.False(t, result.Trace.Spans[0].Success)
		})
	}
}

func TestRunUnparseableListIsNotRetried(t *testing.T) {
	ls := newListServer(t)
	h := newHarness(t, ls, harnessOptions{})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/garbage"})
	require.Error(t, err)
	assert.Equal(t, 1, result.Trace.Spans[0].Attempts)
	assert.Contains(t, result.Trace.Spans[0].Error, "UNPARSEABLE")
}

func TestRunWithoutEnrichment(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go", tenResources...)
	h := newHarness(t, ls, harnessOptions{pipeline: core.PipelineConfig{AverageMinutesPerResource: 20}})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.Trace.SpanCount)
	assert.Contains(t, result.Output, "- **Estimated Time:** ~20 minutes (average)")
	assert.Contains(t, result.Output, "- **Summary:** Notes on Databases.")
	for _, r := range result.Resources {
		assert.False(t, r.Degraded)
		assert.Empty(t, r.Tool)
	}
}

func TestRunSummarizes(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go", tenResources...)
	h := newHarness(t, ls, harnessOptions{summarizer: ai.ExtractiveSummarizer{}})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true, Summarize: true})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 14, result.Trace.SpanCount)
	spans := spansIn(result.Trace, StageSummarize)
	require.Len(t, spans, 1)
	assert.Equal(t, telemetry.KindLLM, spans[0].Kind)
	assert.Equal(t, "llm:extractive", spans[0].Attributes["target"])
	assert.Equal(t, "generation", spans[0].Attributes["class"])
	assert.Contains(t, result.Guide.Overview, "organized into 4 learning paths")
	assert.Contains(t, result.Output, result.Guide.Overview)
}

type failingSummarizer struct{ calls atomic.Int64 }

func (f *failingSummarizer) Name() string { return "failing" }

func (f *failingSummarizer) Summarize(context.Context, ai.Request) (ai.Stream, error) {
	f.calls.Add(1)
	return nil, fmt.Errorf("model rejected prompt: %w", core.ErrInvalidInput)
}

func TestRunFallsBackWhenSummarizationFails(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go", tenResources...)
	summarizer := &failingSummarizer{}
	h := newHarness(t, ls, harnessOptions{summarizer: summarizer})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Summarize: true})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, StageSummarize, result.Diagnostics[0].Stage)
	assert.Equal(t, "llm:failing", result.Diagnostics[0].Target)
	assert.Equal(t, int64(1), summarizer.calls.Load(), "input errors are not retried")
	assert.Equal(t, result.Parsed.ContextSummary, result.Guide.Overview)
	assert.Equal(t, 4, result.Trace.SpanCount)
	spans := spansIn(result.Trace, StageSummarize)
	require.Len(t, spans, 1)
	assert.Equal(t, "long_generation", spans[0].Attributes["class"])
}

func TestRunPipelineDeadline(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go",
		section{name: "Getting Started", paths: []string{"/intro-1", "/intro-2"}},
		section{name: "Slow", paths: []string{"/slow/1"}},
		section{name: "Later", paths: []string{"/later-1", "/later-2"}},
	)
	h := newHarness(t, ls, harnessOptions{
		pipeline:   core.PipelineConfig{MaxParallelism: 1, Timeout: 300 * time.Millisecond},
		summarizer: ai.ExtractiveSummarizer{},
	})

	start := time.Now()
	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true, Summarize: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 5, strings.Count(result.Output, "### Step "), "assembly runs with whatever finished")
	assert.Equal(t, int64(1), ls.slow.Load())

	byTitle := map[string]EnrichedResource{}
	for _, r := range result.Resources {
		byTitle[r.Resource.Title] = r
	}
	assert.False(t, byTitle["intro-1"].Degraded)
	assert.False(t, byTitle["intro-2"].Degraded)
	assert.True(t, byTitle["slow/1"].Degraded)
	assert.True(t, byTitle["later-1"].Degraded)
	assert.Contains(t, byTitle["later-2"].Error, "pipeline deadline exceeded")

	var stages []Stage
	for _, d := range result.Diagnostics {
		stages = append(stages, d.Stage)
	}
	assert.Equal(t, []Stage{StageEnrich, StageEnrich, StageEnrich, StageSummarize}, stages)
	assert.Contains(t, result.Diagnostics[3].Message, "summarization skipped")
	assert.Empty(t, spansIn(result.Trace, StageSummarize))
	assert.Len(t, spansIn(result.Trace, StageAssemble), 1)
}

// readmeCaller serves repository READMEs for the MCP-backed tool.
type readmeCaller struct {
	mu   sync.Mutex
	urls []string
}

func (c *readmeCaller) CallTool(_ context.Context, name string, args map[string]any) (mcp.ToolsCallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, fmt.Sprint(args["url"]))
	return mcp.ToolsCallResult{Content: []mcp.ContentBlock{{Type: "text", Text: "# Echo\n\nHigh performance web framework."}}}, nil
}

func TestRunRoutesByResourceKind(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go",
		section{name: "Web Frameworks", paths: []string{"https://github.com/labstack/echo", "/web-1"}},
		section{name: "Videos", paths: []string{"https://www.youtube.com/watch?v=oV9rvDllKEg"}},
	)
	caller := &readmeCaller{}
	h := newHarness(t, ls, harnessOptions{mcp: caller})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true, Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	require.Len(t, result.Resources, 3)
	assert.Equal(t, tools.RepositoryReadmeName, result.Resources[0].Tool)
	assert.Equal(t, tools.KindRepository, result.Resources[0].Kind)
	assert.Equal(t, "Echo", result.Resources[0].Title)
	assert.Equal(t, tools.WebMetadataName, result.Resources[1].Tool)
	assert.Equal(t, tools.VideoMetadataName, result.Resources[2].Tool)
	assert.Equal(t, "gojp", result.Resources[2].Metadata["author"])
	assert.Equal(t, []string{"https://github.com/labstack/echo"}, caller.urls)

	targets := map[string]bool{}
	for _, s := range spansIn(result.Trace, StageEnrich) {
		targets[s.Attributes["target"]] = true
	}
	assert.True(t, targets["tool:repository_readme@github.com"])
	assert.True(t, targets["tool:video_metadata@www.youtube.com"])

	assert.True(t, strings.HasPrefix(result.Output, "{"))
	assert.Contains(t, result.Output, `"type": "Repository"`)
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	ls := newListServer(t)
	h := newHarness(t, ls, harnessOptions{})

	result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Format: "pdf"})
	require.Error(t, err)
	assert.True(t, core.IsInputError(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, result.Trace.SpanCount)
}

func TestRunConcurrentRequests(t *testing.T) {
	ls := newListServer(t)
	ls.setList("Go", tenResources...)
	h := newHarness(t, ls, harnessOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.orchestrator.Run(context.Background(), Request{SourceURL: ls.URL + "/list.md", Enrich: true})
			if err == nil && result.Status != StatusSuccess {
				err = errors.New("unexpected status " + result.Status)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(core.PipelineConfig{}, Dependencies{})
	assert.True(t, core.IsConfigurationError(err))

	rc, err := resilience.NewClient(resilience.DefaultClientConfig())
	require.NoError(t, err)
	_, err = NewOrchestrator(core.PipelineConfig{}, Dependencies{
		Registry:  core.NewToolRegistry(),
		Resilient: rc,
		Tracer:    telemetry.NewTracer(nil),
	})
	assert.True(t, core.IsNotFound(err))
}
