package tools

import (
	"context"
	"net/url"
	"strings"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/mcp"
)

// RemoteReadmeTool is the tool name called on the MCP endpoint.
const RemoteReadmeTool = "get_readme"

// RepositoryReadme summarizes a source repository from its README,
// fetched through the external MCP endpoint.
type RepositoryReadme struct {
	caller         mcp.Caller
	wordsPerMinute int
}

// NewRepositoryReadme creates the repository_readme tool. caller should not
// retry; the orchestrator already wraps each tool call.
func NewRepositoryReadme(caller mcp.Caller, wordsPerMinute int) *RepositoryReadme {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 200
	}
	return &RepositoryReadme{caller: caller, wordsPerMinute: wordsPerMinute}
}

func (r *RepositoryReadme) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:         RepositoryReadmeName,
		Description:  "Fetches a repository README through the MCP endpoint and summarizes it",
		InputSchema:  urlInputSchema,
		OutputSchema: enrichmentOutputSchema,
		Idempotent:   true,
		Tags:         []string{"enrichment", "repository", "mcp"},
	}
}

func (r *RepositoryReadme) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rawURL, err := stringInput(input, "url")
	if err != nil {
		return nil, err
	}
	result, err := r.caller.CallTool(ctx, RemoteReadmeTool, map[string]any{"url": rawURL})
	if err != nil {
		return nil, err
	}

	readme := result.Text()
	title := readmeTitle(readme)
	if title == "" {
		title = repositoryName(rawURL)
	}
	words := len(strings.Fields(readme))
	return map[string]interface{}{
		"url":         rawURL,
		"kind":        KindRepository,
		"title":       title,
		"description": extractDescription(readme),
		"word_count":  words,
		"minutes":     readingMinutes(words, r.wordsPerMinute),
	}, nil
}

func readmeTitle(readme string) string {
	for _, line := range strings.Split(readme, "\n") {
		if m := mdH1Re.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return cleanInline(m[1])
		}
	}
	return ""
}

func repositoryName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.Trim(u.Path, "/")
}
