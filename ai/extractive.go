package ai

import (
	"context"
	"fmt"
	"strings"
)

// ExtractiveSummarizer builds the overview from the parsed list data
// without calling a model. It is the default when no provider is
// configured.
type ExtractiveSummarizer struct{}

// NewExtractiveSummarizer creates the extractive summarizer.
func NewExtractiveSummarizer() *ExtractiveSummarizer { return &ExtractiveSummarizer{} }

func (ExtractiveSummarizer) Name() string { return "extractive" }

func (ExtractiveSummarizer) Summarize(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sentences []string
	switch {
	case req.ContextSummary != "":
		sentences = append(sentences, req.ContextSummary)
	case req.Description != "":
		sentences = append(sentences, req.Description)
	default:
		sentences = append(sentences, fmt.Sprintf("A guided introduction to %s.", req.Topic))
	}

	if n := len(req.Paths); n > 0 {
		total := 0
		for _, p := range req.Paths {
			total += p.Hours
		}
		first := req.Paths[0]
		sentences = append(sentences, fmt.Sprintf("The material is organized into %d %s totalling about %d hours.",
			n, plural(n, "learning path", "learning paths"), total))
		sentences = append(sentences, fmt.Sprintf("Begin with %s (%s).", first.Name, strings.ToLower(first.Difficulty)))
		if n > 1 {
			last := req.Paths[n-1]
			sentences = append(sentences, fmt.Sprintf("Finish with %s (%s).", last.Name, strings.ToLower(last.Difficulty)))
		}
	}

	chunks := make([]Chunk, 0, len(sentences))
	for i, s := range sentences {
		if i > 0 {
			s = " " + s
		}
		chunks = append(chunks, Chunk{Text: s})
	}
	return &sliceStream{chunks: chunks}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
