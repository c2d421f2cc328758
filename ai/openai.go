package ai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/pathforge/pathforge/core"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAICompletions is the subset of the OpenAI SDK used here. It is
// satisfied by *openai.ChatCompletionService.
type OpenAICompletions interface {
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAISummarizer streams overviews from the Chat Completions API. Any
// OpenAI-compatible endpoint works through AIConfig.BaseURL.
type OpenAISummarizer struct {
	chat        OpenAICompletions
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAISummarizer builds a summarizer on chat.
func NewOpenAISummarizer(chat OpenAICompletions, cfg core.AIConfig) *OpenAISummarizer {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAISummarizer{chat: chat, model: model, maxTokens: cfg.MaxTokens, temperature: cfg.Temperature}
}

// NewOpenAIFromConfig creates the SDK client from cfg.
func NewOpenAIFromConfig(cfg core.AIConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, core.NewFrameworkError("ai.NewOpenAIFromConfig", "config", core.ErrMissingConfiguration)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return NewOpenAISummarizer(&client.Chat.Completions, cfg), nil
}

func (o *OpenAISummarizer) Name() string { return "openai" }

func (o *OpenAISummarizer) Summarize(ctx context.Context, req Request) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}
	if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}

	stream := o.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, classifyOpenAI(err)
	}
	return &deltaStream[openai.ChatCompletionChunk]{
		stream:   stream,
		text:     openAIText,
		classify: classifyOpenAI,
	}, nil
}

func openAIText(chunk openai.ChatCompletionChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.StatusCode, err)
	}
	return classifyTransport("openai", err)
}
