package ai

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/pathforge/pathforge/core"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicMessages is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService.
type AnthropicMessages interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicSummarizer streams overviews from the Anthropic Messages API.
type AnthropicSummarizer struct {
	msg         AnthropicMessages
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicSummarizer builds a summarizer on msg.
func NewAnthropicSummarizer(msg AnthropicMessages, cfg core.AIConfig) *AnthropicSummarizer {
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicSummarizer{msg: msg, model: model, maxTokens: maxTokens, temperature: cfg.Temperature}
}

// NewAnthropicFromConfig creates the SDK client from cfg.
func NewAnthropicFromConfig(cfg core.AIConfig) (*AnthropicSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, core.NewFrameworkError("ai.NewAnthropicFromConfig", "config", core.ErrMissingConfiguration)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdk.NewClient(opts...)
	return NewAnthropicSummarizer(&client.Messages, cfg), nil
}

func (a *AnthropicSummarizer) Name() string { return "anthropic" }

func (a *AnthropicSummarizer) Summarize(ctx context.Context, req Request) (Stream, error) {
	params := sdk.MessageNewParams{
		MaxTokens: int64(a.maxTokens),
		Model:     sdk.Model(a.model),
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(BuildPrompt(req))),
		},
	}
	if a.temperature > 0 {
		params.Temperature = sdk.Float(a.temperature)
	}

	stream := a.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, classifyAnthropic(err)
	}
	return &deltaStream[sdk.MessageStreamEventUnion]{
		stream:   stream,
		text:     anthropicText,
		classify: classifyAnthropic,
	}, nil
}

func anthropicText(event sdk.MessageStreamEventUnion) string {
	if ev, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
		if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok {
			return delta.Text
		}
	}
	return ""
}

func classifyAnthropic(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("anthropic", apiErr.StatusCode, err)
	}
	return classifyTransport("anthropic", err)
}
