// Package ai produces the learning guide overview. Every summarizer
// returns a finite stream of text chunks; callers consume the whole stream
// before moving on, and a failed stream is only recovered by reissuing the
// call.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptySummary is returned by Collect when a stream ends without text.
var ErrEmptySummary = errors.New("summarizer returned no text")

// Chunk is one piece of streamed text.
type Chunk struct {
	Text string
}

// Stream yields chunks until Recv returns io.EOF. Close releases the
// underlying connection and is safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// PathOutline is the part of a learning path the summarizer sees.
type PathOutline struct {
	Name       string
	Difficulty string
	Hours      int
	Resources  []string
}

// Request describes what to summarize.
type Request struct {
	Topic          string
	Description    string
	ContextSummary string
	Language       string
	Paths          []PathOutline
}

// Summarizer opens a summarization stream.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, req Request) (Stream, error)
}

// Collect reads stream to the end and returns the accumulated text. The
// stream is always closed.
func Collect(ctx context.Context, stream Stream) (string, error) {
	defer func() {
		_ = stream.Close()
	}()

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}

const systemPrompt = "You write concise overviews for guided learning paths. " +
	"Write two or three short paragraphs of plain prose: what the topic is, " +
	"who the path is for, and how the paths build on each other. " +
	"Do not use headings or lists."

// BuildPrompt renders the user prompt for req.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", req.Topic)
	if req.Language != "" && req.Language != "General" {
		fmt.Fprintf(&sb, "Language: %s\n", req.Language)
	}
	if req.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", req.Description)
	}
	if req.ContextSummary != "" {
		fmt.Fprintf(&sb, "Context: %s\n", req.ContextSummary)
	}
	if len(req.Paths) > 0 {
		sb.WriteString("\nLearning paths:\n")
		for i, p := range req.Paths {
			fmt.Fprintf(&sb, "%d. %s (%s, about %d hours)", i+1, p.Name, p.Difficulty, p.Hours)
			if len(p.Resources) > 0 {
				fmt.Fprintf(&sb, ": %s", strings.Join(p.Resources, "; "))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nWrite the overview for this learning guide.")
	return sb.String()
}

// sliceStream replays a fixed list of chunks.
type sliceStream struct {
	chunks []Chunk
	i      int
}

func (s *sliceStream) Recv() (Chunk, error) {
	if s.i >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *sliceStream) Close() error { return nil }

// sdkStream is the iterator shape shared by the provider SDK streams.
type sdkStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// deltaStream adapts an SDK event stream, keeping only text deltas.
type deltaStream[T any] struct {
	stream   sdkStream[T]
	text     func(T) string
	classify func(error) error
	closed   bool
}

func (d *deltaStream[T]) Recv() (Chunk, error) {
	for d.stream.Next() {
		if t := d.text(d.stream.Current()); t != "" {
			return Chunk{Text: t}, nil
		}
	}
	if err := d.stream.Err(); err != nil {
		return Chunk{}, d.classify(err)
	}
	return Chunk{}, io.EOF
}

func (d *deltaStream[T]) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.stream.Close()
}
