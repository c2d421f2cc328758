package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pathforge/pathforge/core"
)

// Session is a single streamable-HTTP MCP session. The handshake runs on
// the first call and the session is reused afterwards; a transport failure
// drops it so the next call reconnects. Session does not retry; wrap it in
// a Client for resilient calls.
type Session struct {
	endpoint   string
	impl       *mcpsdk.Client
	httpClient *http.Client

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// NewSession creates a session for endpoint. A nil httpClient gets an
// otelhttp-instrumented client so trace context propagates to the server.
func NewSession(endpoint string, info ClientInfo, headers map[string]string, httpClient *http.Client) (*Session, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("mcp endpoint is required: %w", core.ErrMissingConfiguration)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if len(headers) > 0 {
		withHeaders := *httpClient
		base := withHeaders.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		withHeaders.Transport = &headerTransport{base: base, headers: headers}
		httpClient = &withHeaders
	}
	if info.Name == "" {
		info = ClientInfo{Name: "pathforge", Version: "1.0.0"}
	}
	return &Session{
		endpoint:   endpoint,
		impl:       mcpsdk.NewClient(&mcpsdk.Implementation{Name: info.Name, Version: info.Version}, nil),
		httpClient: httpClient,
	}, nil
}

// Endpoint returns the server URL.
func (s *Session) Endpoint() string { return s.endpoint }

func (s *Session) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	cs, err := s.impl.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint:   s.endpoint,
		HTTPClient: s.httpClient,
	}, nil)
	if err != nil {
		return nil, s.classify(ctx, MethodInitialize, err)
	}
	s.session = cs
	return cs, nil
}

// drop forgets cs if it is still the current session.
func (s *Session) drop(cs *mcpsdk.ClientSession) {
	s.mu.Lock()
	current := s.session == cs
	if current {
		s.session = nil
	}
	s.mu.Unlock()
	if current {
		_ = cs.Close()
	}
}

// classify maps SDK errors onto the error taxonomy. JSON-RPC errors are
// answers from the server and never retried; anything else is a transport
// failure.
func (s *Session) classify(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var wire *jsonrpc.Error
	if errors.As(err, &wire) {
		return &RPCError{Method: method, Code: int(wire.Code), Message: wire.Message, Data: wire.Data}
	}
	return &core.NetworkError{Target: s.endpoint, Err: fmt.Errorf("mcp %s: %w", method, err)}
}

func (s *Session) do(ctx context.Context, method string, fn func(cs *mcpsdk.ClientSession) error) error {
	cs, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := fn(cs); err != nil {
		err = s.classify(ctx, method, err)
		var netErr *core.NetworkError
		if errors.As(err, &netErr) {
			s.drop(cs)
		}
		return err
	}
	return nil
}

// Initialize opens the session if needed and reports the server handshake.
func (s *Session) Initialize(ctx context.Context) (InitializeResult, error) {
	cs, err := s.connect(ctx)
	if err != nil {
		return InitializeResult{}, err
	}
	return initializeResultFromSDK(cs.InitializeResult()), nil
}

// ListTools returns every page of the remote tool catalog.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	err := s.do(ctx, MethodToolsList, func(cs *mcpsdk.ClientSession) error {
		tools = nil
		params := &mcpsdk.ListToolsParams{}
		for {
			res, err := cs.ListTools(ctx, params)
			if err != nil {
				return err
			}
			for _, t := range res.Tools {
				tools = append(tools, toolFromSDK(t))
			}
			if res.NextCursor == "" {
				return nil
			}
			params.Cursor = res.NextCursor
		}
	})
	return tools, err
}

// ListResources returns every page of the remote resource collection.
func (s *Session) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	err := s.do(ctx, MethodResourcesList, func(cs *mcpsdk.ClientSession) error {
		resources = nil
		params := &mcpsdk.ListResourcesParams{}
		for {
			res, err := cs.ListResources(ctx, params)
			if err != nil {
				return err
			}
			for _, r := range res.Resources {
				resources = append(resources, resourceFromSDK(r))
			}
			if res.NextCursor == "" {
				return nil
			}
			params.Cursor = res.NextCursor
		}
	})
	return resources, err
}

// CallTool issues a single tools/call. A result flagged as an error is
// returned together with a REMOTE_TOOL_ERROR.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (ToolsCallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result ToolsCallResult
	err := s.do(ctx, MethodToolsCall, func(cs *mcpsdk.ClientSession) error {
		res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			return err
		}
		result = callResultFromSDK(res)
		return nil
	})
	if err != nil {
		return ToolsCallResult{}, err
	}
	if result.IsError {
		return result, remoteToolError(name, result)
	}
	return result, nil
}

// Close ends the session, if one is open.
func (s *Session) Close() error {
	s.mu.Lock()
	cs := s.session
	s.session = nil
	s.mu.Unlock()
	if cs == nil {
		return nil
	}
	return cs.Close()
}

func remoteToolError(name string, result ToolsCallResult) *core.ToolExecutionError {
	msg := result.Text()
	if msg == "" {
		msg = "remote tool reported an error"
	}
	toolErr := core.NewToolError("REMOTE_TOOL_ERROR", core.CategoryServiceError, errors.New(msg))
	toolErr.Tool = name
	return toolErr
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
