package ai

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/pathforge/pathforge/core"
)

// Bedrock defaults.
const (
	DefaultBedrockModel  = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	DefaultBedrockRegion = "us-east-1"
)

// BedrockStreamer opens a ConverseStream event stream.
type BedrockStreamer interface {
	ConverseStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamEventStream, error)
}

type bedrockRuntime struct {
	client *bedrockruntime.Client
}

func (r bedrockRuntime) ConverseStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamEventStream, error) {
	out, err := r.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// BedrockSummarizer streams overviews from the AWS Bedrock Converse API.
type BedrockSummarizer struct {
	runtime     BedrockStreamer
	model       string
	maxTokens   int
	temperature float64
}

// NewBedrockSummarizer builds a summarizer on runtime.
func NewBedrockSummarizer(runtime BedrockStreamer, cfg core.AIConfig) *BedrockSummarizer {
	model := cfg.Model
	if model == "" {
		model = DefaultBedrockModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockSummarizer{runtime: runtime, model: model, maxTokens: maxTokens, temperature: cfg.Temperature}
}

// NewBedrockFromConfig loads AWS credentials and creates the runtime client.
// Static credentials are used when an access key is configured; otherwise
// the default AWS credential chain applies.
func NewBedrockFromConfig(ctx context.Context, cfg core.AIConfig) (*BedrockSummarizer, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultBedrockRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, core.NewFrameworkError("ai.NewBedrockFromConfig", "config", errors.Join(core.ErrInvalidConfiguration, err))
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
	})
	return NewBedrockSummarizer(bedrockRuntime{client: client}, cfg), nil
}

func (b *BedrockSummarizer) Name() string { return "bedrock" }

func (b *BedrockSummarizer) Summarize(ctx context.Context, req Request) (Stream, error) {
	inference := &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(b.maxTokens))}
	if b.temperature > 0 {
		inference.Temperature = aws.Float32(float32(b.temperature))
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(b.model),
		System:  []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: BuildPrompt(req)}},
		}},
		InferenceConfig: inference,
	}

	stream, err := b.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, classifyBedrock(err)
	}
	return &bedrockStream{stream: stream}, nil
}

// bedrockStream keeps only text deltas from a ConverseStream.
type bedrockStream struct {
	stream *bedrockruntime.ConverseStreamEventStream
	closed bool
}

func (s *bedrockStream) Recv() (Chunk, error) {
	for event := range s.stream.Events() {
		ev, ok := event.(*brtypes.ConverseStreamOutputMemberContentBlockDelta)
		if !ok {
			continue
		}
		if d, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && d.Value != "" {
			return Chunk{Text: d.Value}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, classifyBedrock(err)
	}
	return Chunk{}, io.EOF
}

func (s *bedrockStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}

func classifyBedrock(err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus("bedrock", respErr.HTTPStatusCode(), err)
	}
	return classifyTransport("bedrock", err)
}
