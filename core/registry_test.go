package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoInputSchema = `{
	"type": "object",
	"properties": {"url": {"type": "string", "minLength": 1}, "limit": {"type": "integer"}},
	"required": ["url"]
}`

const echoOutputSchema = `{
	"type": "object",
	"properties": {"title": {"type": "string"}},
	"required": ["title"]
}`

func echoTool() Tool {
	return ToolFunc(func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"title": "echo " + input["url"].(string)}, nil
	})
}

func newEchoRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	r := NewToolRegistry()
	require.NoError(t, r.Register(ToolDescriptor{
		Name:         "echo",
		Description:  "echoes the url",
		InputSchema:  json.RawMessage(echoInputSchema),
		OutputSchema: json.RawMessage(echoOutputSchema),
		Idempotent:   true,
		Tags:         []string{"test"},
	}, echoTool()))
	return r
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := newEchoRegistry(t)

	tool, err := r.Resolve("echo")
	require.NoError(t, err)
	require.NotNil(t, tool)

	desc, err := r.Descriptor("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", desc.Name)
	assert.True(t, desc.Idempotent)

	// descriptors are copies
	desc.Tags[0] = "mutated"
	again, _ := r.Descriptor("echo")
	assert.Equal(t, "test", again.Tags[0])
}

func TestRegistryDuplicate(t *testing.T) {
	r := newEchoRegistry(t)

	err := r.Register(ToolDescriptor{Name: "echo"}, echoTool())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTool)

	var fe *FrameworkError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "echo", fe.ID)
}

func TestRegistryUnknown(t *testing.T) {
	r := NewToolRegistry()

	_, err := r.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.True(t, IsNotFound(err))

	res := r.Execute(context.Background(), "missing", nil)
	assert.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, CategoryNotFound, res.Err.Category)
}

func TestRegistryInvalidSchema(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(ToolDescriptor{Name: "bad", InputSchema: json.RawMessage(`{"type": 12}`)}, echoTool())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	err = r.Register(ToolDescriptor{Name: "bad", InputSchema: json.RawMessage(`{not json`)}, echoTool())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestRegistryFreeze(t *testing.T) {
	r := newEchoRegistry(t)
	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(ToolDescriptor{Name: "late"}, echoTool())
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	assert.True(t, IsStateError(err))

	// lookups still work
	_, err = r.Resolve("echo")
	assert.NoError(t, err)
}

func TestRegistryListOrder(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(ToolDescriptor{Name: name}, echoTool()))
	}
	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestRegistryExecute(t *testing.T) {
	r := newEchoRegistry(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res := r.Execute(ctx, "echo", map[string]interface{}{"url": "https://go.dev", "limit": 3})
		require.True(t, res.Success, "unexpected error: %v", res.Error())
		assert.Equal(t, "echo https://go.dev", res.Output["title"])
		assert.Nil(t, res.Err)
		assert.NoError(t, res.Error())
	})

	t.Run("input validation", func(t *testing.T) {
		res := r.Execute(ctx, "echo", map[string]interface{}{"limit": 3})
		assert.False(t, res.Success)
		require.NotNil(t, res.Err)
		assert.Equal(t, CategoryInputError, res.Err.Category)
		assert.False(t, res.Err.Retryable)
		assert.Equal(t, "echo", res.Err.Tool)
		assert.Nil(t, res.Output)
	})
}

func TestRegistryExecuteOutputValidation(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(ToolDescriptor{
		Name:         "broken",
		OutputSchema: json.RawMessage(echoOutputSchema),
	}, ToolFunc(func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"title": 42}, nil
	})))

	res := r.Execute(context.Background(), "broken", nil)
	assert.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, CategoryOutputError, res.Err.Category)
}

func TestRegistryExecuteRecoversPanic(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(ToolDescriptor{Name: "panicky"},
		ToolFunc(func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			panic("nil map write")
		})))

	res := r.Execute(context.Background(), "panicky", nil)
	assert.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, "PANIC", res.Err.Code)
	assert.Equal(t, CategoryInternal, res.Err.Category)
	assert.Contains(t, res.Err.Message, "nil map write")
}

func TestRegistryExecuteWrapsPlainErrors(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(ToolDescriptor{Name: "flaky"},
		ToolFunc(func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			return nil, &NetworkError{Target: "example.com", Err: errors.New("connection reset")}
		})))

	res := r.Execute(context.Background(), "flaky", nil)
	require.NotNil(t, res.Err)
	assert.True(t, res.Err.Retryable)
	assert.True(t, IsRetryable(res.Error()))
	assert.ErrorIs(t, res.Error(), ErrConnectionFailed)
}

func TestRegistryConcurrentExecute(t *testing.T) {
	r := newEchoRegistry(t)
	r.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := r.Execute(context.Background(), "echo", map[string]interface{}{"url": fmt.Sprintf("u%d", i)})
			assert.True(t, res.Success)
		}(i)
	}
	wg.Wait()
}
