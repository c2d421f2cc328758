package core

import "context"

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can tag every entry
// with the component that produced it (e.g. "pathforge/resilience").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Tool is the capability every registered tool implements.
//
// Implementations must be stateless: an invocation may only depend on its
// own input. The registry invokes tools concurrently.
type Tool interface {
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// Execute calls f(ctx, input).
func (f ToolFunc) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, input)
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// WithComponent returns the same no-op logger.
func (n *NoOpLogger) WithComponent(string) Logger { return n }

// ComponentLogger returns logger tagged with component when the logger
// supports it, or a NoOpLogger when logger is nil.
func ComponentLogger(logger Logger, component string) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}
