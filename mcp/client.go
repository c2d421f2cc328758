package mcp

import (
	"context"
	"net/http"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/resilience"
)

// Caller is the tools/call surface tools depend on.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (ToolsCallResult, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Endpoint   string
	Headers    map[string]string
	HTTPClient *http.Client
	ClientInfo ClientInfo
	// Resilient wraps every call. Required.
	Resilient *resilience.Client
	Logger    core.Logger
}

// Client talks to the external protocol endpoint. Every call goes through
// the resilient client with class Protocol and target "mcp:<method>", so
// each method has its own breaker.
type Client struct {
	session   *Session
	resilient *resilience.Client
	logger    core.Logger
}

// NewClient creates a client. No network call is made until the first
// request.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Resilient == nil {
		return nil, core.NewFrameworkError("mcp.NewClient", "config", core.ErrMissingConfiguration)
	}
	session, err := NewSession(opts.Endpoint, opts.ClientInfo, opts.Headers, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Client{
		session:   session,
		resilient: opts.Resilient,
		logger:    core.ComponentLogger(opts.Logger, "pathforge/mcp"),
	}, nil
}

// SetLogger sets the logger.
func (c *Client) SetLogger(logger core.Logger) {
	c.logger = core.ComponentLogger(logger, "pathforge/mcp")
}

// Session returns the underlying non-retrying session.
func (c *Client) Session() *Session { return c.session }

// Close ends the MCP session.
func (c *Client) Close() error { return c.session.Close() }

// Target returns the breaker key used for method.
func Target(method string) string { return "mcp:" + method }

func (c *Client) invoke(ctx context.Context, method string, idempotent bool, fn func(ctx context.Context) error) (resilience.Outcome, error) {
	outcome, err := c.resilient.Invoke(ctx, Target(method), resilience.CallOptions{
		Class:      resilience.ClassProtocol,
		Idempotent: idempotent,
	}, fn)
	if err != nil {
		c.logger.Warn("MCP call failed", map[string]interface{}{
			"operation": "mcp_call",
			"method":    method,
			"endpoint":  c.session.Endpoint(),
			"attempts":  outcome.Attempts,
			"error":     err.Error(),
		})
		return outcome, err
	}
	c.logger.Debug("MCP call completed", map[string]interface{}{
		"operation":   "mcp_call",
		"method":      method,
		"attempts":    outcome.Attempts,
		"duration_ms": outcome.Duration.Milliseconds(),
	})
	return outcome, nil
}

// Initialize opens the session and returns the server handshake.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	var result InitializeResult
	_, err := c.invoke(ctx, MethodInitialize, true, func(ctx context.Context) error {
		r, err := c.session.Initialize(ctx)
		result = r
		return err
	})
	return result, err
}

// ListTools returns the remote tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	_, err := c.invoke(ctx, MethodToolsList, true, func(ctx context.Context) error {
		t, err := c.session.ListTools(ctx)
		tools = t
		return err
	})
	return tools, err
}

// ListResources returns the remote resource collection.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	_, err := c.invoke(ctx, MethodResourcesList, true, func(ctx context.Context) error {
		r, err := c.session.ListResources(ctx)
		resources = r
		return err
	})
	return resources, err
}

// CallTool invokes a remote tool. Remote tools are assumed idempotent;
// use CallToolOnce for tools with side effects.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolsCallResult, error) {
	result, _, err := c.callTool(ctx, name, args, true)
	return result, err
}

// CallToolOnce invokes a remote tool without retries.
func (c *Client) CallToolOnce(ctx context.Context, name string, args map[string]any) (ToolsCallResult, resilience.Outcome, error) {
	return c.callTool(ctx, name, args, false)
}

func (c *Client) callTool(ctx context.Context, name string, args map[string]any, idempotent bool) (ToolsCallResult, resilience.Outcome, error) {
	var result ToolsCallResult
	outcome, err := c.resilient.Invoke(ctx, Target(MethodToolsCall), resilience.CallOptions{
		Class:      resilience.ClassProtocol,
		Idempotent: idempotent,
	}, func(ctx context.Context) error {
		r, err := c.session.CallTool(ctx, name, args)
		result = r
		return err
	})
	if err != nil {
		c.logger.Warn("MCP tool call failed", map[string]interface{}{
			"operation": "mcp_call_tool",
			"tool":      name,
			"attempts":  outcome.Attempts,
			"error":     err.Error(),
		})
	}
	return result, outcome, err
}
