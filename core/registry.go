package core

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ToolDescriptor describes a registered tool. Schemas are JSON Schema
// documents; an empty schema accepts any payload.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	// Idempotent tools may be retried by the resilient client.
	Idempotent bool     `json:"idempotent"`
	Tags       []string `json:"tags,omitempty"`
}

func (d ToolDescriptor) clone() ToolDescriptor {
	c := d
	c.InputSchema = append(json.RawMessage(nil), d.InputSchema...)
	c.OutputSchema = append(json.RawMessage(nil), d.OutputSchema...)
	c.Tags = append([]string(nil), d.Tags...)
	return c
}

// ToolExecutionResult is the record of one tool invocation.
type ToolExecutionResult struct {
	ToolName string                 `json:"tool_name"`
	Input    map[string]interface{} `json:"input"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Success  bool                   `json:"success"`
	Err      *ToolExecutionError    `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Error returns the failure as an error, or nil on success.
func (r ToolExecutionResult) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

type registeredTool struct {
	desc   ToolDescriptor
	impl   Tool
	input  *Schema
	output *Schema
}

// ToolRegistry maps tool names to descriptors and implementations.
// It is populated at startup and frozen before the first pipeline run;
// lookups are safe for concurrent use.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	order  []string
	frozen bool
	logger Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]*registeredTool),
		logger: &NoOpLogger{},
	}
}

// SetLogger sets the logger for the registry
func (r *ToolRegistry) SetLogger(logger Logger) {
	r.logger = ComponentLogger(logger, "pathforge/registry")
}

// Register adds a tool. Names are unique; schemas must compile.
func (r *ToolRegistry) Register(desc ToolDescriptor, impl Tool) error {
	if desc.Name == "" || impl == nil {
		return &FrameworkError{
			Op:      "registry.Register",
			Kind:    "tool",
			Message: "tool name and implementation are required",
			Err:     ErrInvalidConfiguration,
		}
	}

	input, err := CompileSchema(desc.Name+"_input", desc.InputSchema)
	if err != nil {
		return &FrameworkError{Op: "registry.Register", Kind: "tool", ID: desc.Name,
			Err: fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)}
	}
	output, err := CompileSchema(desc.Name+"_output", desc.OutputSchema)
	if err != nil {
		return &FrameworkError{Op: "registry.Register", Kind: "tool", ID: desc.Name,
			Err: fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &FrameworkError{Op: "registry.Register", Kind: "tool", ID: desc.Name, Err: ErrRegistryFrozen}
	}
	if _, exists := r.tools[desc.Name]; exists {
		return &FrameworkError{Op: "registry.Register", Kind: "tool", ID: desc.Name, Err: ErrDuplicateTool}
	}

	r.tools[desc.Name] = &registeredTool{desc: desc.clone(), impl: impl, input: input, output: output}
	r.order = append(r.order, desc.Name)

	r.logger.Debug("Tool registered", map[string]interface{}{
		"operation":  "tool_register",
		"tool":       desc.Name,
		"idempotent": desc.Idempotent,
	})
	return nil
}

// Freeze makes the registry read-only.
func (r *ToolRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *ToolRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Resolve returns the implementation registered under name.
func (r *ToolRegistry) Resolve(name string) (Tool, error) {
	t, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return t.impl, nil
}

// Descriptor returns a copy of the descriptor registered under name.
func (r *ToolRegistry) Descriptor(name string) (ToolDescriptor, error) {
	t, err := r.lookup(name)
	if err != nil {
		return ToolDescriptor{}, err
	}
	return t.desc.clone(), nil
}

// List returns descriptors in registration order.
func (r *ToolRegistry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc.clone())
	}
	return out
}

func (r *ToolRegistry) lookup(name string) (*registeredTool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &FrameworkError{Op: "registry.Resolve", Kind: "tool", ID: name, Err: ErrUnknownTool}
	}
	return t, nil
}

// Execute runs a tool once: input validation, invocation with panic
// recovery, output validation. Every failure is reported as a
// *ToolExecutionError on the result; Execute itself never panics.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input map[string]interface{}) ToolExecutionResult {
	start := time.Now()
	result := ToolExecutionResult{ToolName: name, Input: input}
	fail := func(te *ToolExecutionError) ToolExecutionResult {
		te.Tool = name
		result.Err = te
		result.Duration = time.Since(start)
		return result
	}

	t, err := r.lookup(name)
	if err != nil {
		te := NewToolError("UNKNOWN_TOOL", CategoryNotFound, err)
		return fail(te)
	}

	if err := t.input.Validate(input); err != nil {
		te := NewToolError("INVALID_INPUT", CategoryInputError, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return fail(te)
	}

	output, err := r.invoke(ctx, t, input)
	if err != nil {
		return fail(AsToolError(name, err))
	}

	if err := t.output.Validate(output); err != nil {
		te := NewToolError("INVALID_OUTPUT", CategoryOutputError, err)
		return fail(te)
	}

	result.Output = output
	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *ToolRegistry) invoke(ctx context.Context, t *registeredTool, input map[string]interface{}) (output map[string]interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Tool panicked", map[string]interface{}{
				"operation": "tool_execute",
				"tool":      t.desc.Name,
				"panic":     fmt.Sprintf("%v", p),
				"stack":     string(debug.Stack()),
			})
			te := NewToolError("PANIC", CategoryInternal, fmt.Errorf("panic: %v", p))
			output, err = nil, te
		}
	}()
	return t.impl.Execute(ctx, input)
}
