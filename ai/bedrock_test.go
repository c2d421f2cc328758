package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge/core"
)

type fakeStreamReader struct {
	events chan brtypes.ConverseStreamOutput
	err    error
}

func (r *fakeStreamReader) Events() <-chan brtypes.ConverseStreamOutput { return r.events }
func (r *fakeStreamReader) Close() error                                { return nil }
func (r *fakeStreamReader) Err() error                                  { return r.err }

type fakeBedrock struct {
	input   *bedrockruntime.ConverseStreamInput
	events  []brtypes.ConverseStreamOutput
	err     error
	openErr error
}

func (f *fakeBedrock) ConverseStream(_ context.Context, input *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamEventStream, error) {
	f.input = input
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := make(chan brtypes.ConverseStreamOutput, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	reader := &fakeStreamReader{events: ch, err: f.err}
	return bedrockruntime.NewConverseStreamEventStream(func(es *bedrockruntime.ConverseStreamEventStream) {
		es.Reader = reader
	}), nil
}

func bedrockDelta(text string) brtypes.ConverseStreamOutput {
	return &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: text},
		},
	}
}

func bedrockStatusError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New(http.StatusText(status)),
	}
}

func TestBedrockSummarizerStreamsText(t *testing.T) {
	runtime := &fakeBedrock{events: []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberMessageStart{Value: brtypes.MessageStartEvent{Role: brtypes.ConversationRoleAssistant}},
		bedrockDelta("Go is "),
		bedrockDelta("a simple language."),
		&brtypes.ConverseStreamOutputMemberMessageStop{Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonEndTurn}},
	}}
	s := NewBedrockSummarizer(runtime, core.AIConfig{Model: "bedrock-test", MaxTokens: 256, Temperature: 0.2})
	assert.Equal(t, "bedrock", s.Name())

	stream, err := s.Summarize(context.Background(), testRequest())
	require.NoError(t, err)
	text, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Go is a simple language.", text)

	require.NotNil(t, runtime.input)
	assert.Equal(t, "bedrock-test", aws.ToString(runtime.input.ModelId))
	assert.Equal(t, int32(256), aws.ToInt32(runtime.input.InferenceConfig.MaxTokens))
	require.Len(t, runtime.input.System, 1)
	system, ok := runtime.input.System[0].(*brtypes.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, systemPrompt, system.Value)
}

func TestBedrockSummarizerDefaults(t *testing.T) {
	s := NewBedrockSummarizer(&fakeBedrock{}, core.AIConfig{})
	assert.Equal(t, DefaultBedrockModel, s.model)
	assert.Equal(t, 1024, s.maxTokens)
}

func TestBedrockMidStreamFailureIsRetryable(t *testing.T) {
	runtime := &fakeBedrock{
		events: []brtypes.ConverseStreamOutput{bedrockDelta("partial")},
		err:    errors.New("connection reset by peer"),
	}
	stream, err := NewBedrockSummarizer(runtime, core.AIConfig{}).Summarize(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = Collect(context.Background(), stream)
	var netErr *core.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, core.IsRetryable(err))
}

func TestBedrockStatusClassification(t *testing.T) {
	runtime := &fakeBedrock{openErr: bedrockStatusError(http.StatusTooManyRequests)}
	_, err := NewBedrockSummarizer(runtime, core.AIConfig{}).Summarize(context.Background(), testRequest())
	assert.True(t, core.IsRetryable(err))

	err = classifyBedrock(bedrockStatusError(http.StatusForbidden))
	assert.False(t, core.IsRetryable(err))
	assert.True(t, core.IsInputError(err))
}
