package ai

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge/core"
)

type scriptedStream struct {
	chunks []Chunk
	err    error
	closed int
}

func (s *scriptedStream) Recv() (Chunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedStream) Close() error {
	s.closed++
	return nil
}

func TestCollectAccumulatesChunks(t *testing.T) {
	s := &scriptedStream{chunks: []Chunk{{Text: "Go is "}, {Text: ""}, {Text: "simple. "}}}
	text, err := Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Go is simple.", text)
	assert.Equal(t, 1, s.closed)
}

func TestCollectPropagatesStreamError(t *testing.T) {
	boom := &core.NetworkError{Target: "openai", Err: errors.New("reset")}
	s := &scriptedStream{chunks: []Chunk{{Text: "partial"}}, err: boom}
	_, err := Collect(context.Background(), s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.closed)
}

func TestCollectEmptyStream(t *testing.T) {
	_, err := Collect(context.Background(), &scriptedStream{chunks: []Chunk{{Text: "  "}}})
	assert.ErrorIs(t, err, ErrEmptySummary)
}

func TestCollectHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scriptedStream{chunks: []Chunk{{Text: "never read"}}}
	_, err := Collect(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.chunks, 1)
}

func testRequest() Request {
	return Request{
		Topic:          "Go",
		Description:    "A curated list of awesome Go frameworks.",
		ContextSummary: "This is an Awesome List focused on Go.",
		Language:       "Go",
		Paths: []PathOutline{
			{Name: "Web Frameworks", Difficulty: "Intermediate", Hours: 2, Resources: []string{"Echo", "Gin"}},
			{Name: "Getting Started", Difficulty: "Beginner", Hours: 1, Resources: []string{"A Tour of Go"}},
		},
	}
}

func TestExtractiveSummarizer(t *testing.T) {
	s := NewExtractiveSummarizer()
	stream, err := s.Summarize(context.Background(), testRequest())
	require.NoError(t, err)

	text, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "This is an Awesome List focused on Go. "+
		"The material is organized into 2 learning paths totalling about 3 hours. "+
		"Begin with Web Frameworks (intermediate). "+
		"Finish with Getting Started (beginner).", text)
}

func TestExtractiveSummarizerFallsBackToTopic(t *testing.T) {
	stream, err := NewExtractiveSummarizer().Summarize(context.Background(), Request{Topic: "Rust"})
	require.NoError(t, err)
	text, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "A guided introduction to Rust.", text)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testRequest())
	assert.Contains(t, prompt, "Topic: Go\n")
	assert.Contains(t, prompt, "Language: Go\n")
	assert.Contains(t, prompt, "1. Web Frameworks (Intermediate, about 2 hours): Echo; Gin\n")
	assert.Contains(t, prompt, "2. Getting Started (Beginner, about 1 hours): A Tour of Go\n")
}

func TestNewSummarizer(t *testing.T) {
	s, err := NewSummarizer(core.AIConfig{Provider: ProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewSummarizer(core.AIConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "extractive", s.Name())

	s, err = NewSummarizer(core.AIConfig{Provider: ProviderAnthropic, APIKey: "test-key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.Name())

	s, err = NewSummarizer(core.AIConfig{Provider: ProviderOpenAI, APIKey: "test-key", BaseURL: "http://localhost:1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Name())

	_, err = NewSummarizer(core.AIConfig{Provider: ProviderOpenAI}, nil)
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewSummarizer(core.AIConfig{Provider: "gemini"}, nil)
	assert.True(t, core.IsConfigurationError(err))
}
