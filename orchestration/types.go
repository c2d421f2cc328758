package orchestration

import (
	"time"

	"github.com/pathforge/pathforge/learningpath"
	"github.com/pathforge/pathforge/telemetry"
)

// Stage names a pipeline state. Spans carry the stage they ran in.
type Stage string

const (
	StageParse         Stage = "PARSE"
	StageEnrich        Stage = "ENRICH"
	StageGeneratePaths Stage = "GENERATE_PATHS"
	StageSummarize     Stage = "SUMMARIZE"
	StageAssemble      Stage = "ASSEMBLE"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// Output formats
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Result status values, shared with the trace summary.
const (
	StatusSuccess = telemetry.StatusSuccess
	StatusPartial = telemetry.StatusPartial
	StatusFailed  = telemetry.StatusFailed
)

// Request is one pipeline run. RequestID is optional and generated when
// empty. Format is "markdown" (the default) or "json".
type Request struct {
	RequestID string `json:"request_id,omitempty"`
	SourceURL string `json:"url"`
	Enrich    bool   `json:"enrich"`
	Summarize bool   `json:"summarize"`
	Format    string `json:"format,omitempty"`
}

// ParsedListData is what the parse stage extracts from the source list.
type ParsedListData struct {
	Topic          string                  `json:"topic"`
	Description    string                  `json:"description"`
	Language       string                  `json:"language"`
	Categories     []string                `json:"categories"`
	Resources      []learningpath.Resource `json:"resources"`
	TotalItems     int                     `json:"total_items"`
	ContextSummary string                  `json:"context_summary"`
}

// EnrichedResource is a resource plus whatever the enrichment tool found.
// A degraded resource carries only the raw parsed data.
type EnrichedResource struct {
	Resource learningpath.Resource  `json:"resource"`
	Tool     string                 `json:"tool,omitempty"`
	Kind     string                 `json:"kind"`
	Title    string                 `json:"title"`
	Summary  string                 `json:"summary,omitempty"`
	Minutes  int                    `json:"minutes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Degraded bool                   `json:"degraded"`
	Error    string                 `json:"error,omitempty"`
}

// Diagnostic explains why a run was not a clean success.
type Diagnostic struct {
	Stage   Stage  `json:"stage"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// Step is one resource in the rendered guide.
type Step struct {
	Number         int    `json:"number"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Path           string `json:"path"`
	Type           string `json:"type"`
	EstimatedTime  string `json:"estimated_time"`
	Summary        string `json:"summary"`
	WhyThisMatters string `json:"why_this_matters"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// GuidedLearningPath is the assembled document, before rendering.
type GuidedLearningPath struct {
	Topic            string                      `json:"topic"`
	Language         string                      `json:"language,omitempty"`
	Overview         string                      `json:"overview"`
	RecommendedStart string                      `json:"recommended_starting_point,omitempty"`
	TimeCommitment   learningpath.TimeCommitment `json:"time_commitment"`
	Paths            []learningpath.Path         `json:"learning_paths"`
	Steps            []Step                      `json:"steps"`
}

// Result is what a run produces. Status is always set; Diagnostics is
// non-empty whenever Status is not success.
type Result struct {
	RequestID   string              `json:"request_id"`
	Status      string              `json:"status"`
	Stage       Stage               `json:"stage"`
	Format      string              `json:"format"`
	Diagnostics []Diagnostic        `json:"diagnostics,omitempty"`
	Parsed      *ParsedListData     `json:"parsed,omitempty"`
	Resources   []EnrichedResource  `json:"resources,omitempty"`
	Paths       []learningpath.Path `json:"learning_paths,omitempty"`
	Guide       *GuidedLearningPath `json:"guide,omitempty"`
	Output      string              `json:"output,omitempty"`
	Trace       *telemetry.Summary  `json:"trace,omitempty"`
	Duration    time.Duration       `json:"duration"`
}
