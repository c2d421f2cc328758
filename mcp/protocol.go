package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pathforge/pathforge/core"
)

// Method names, used as breaker keys.
const (
	MethodInitialize    = "initialize"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
)

// JSON-RPC error codes that mean the request itself was rejected.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// RPCError is a JSON-RPC error returned by the server. It is never retried;
// request rejections also unwrap to core.ErrInvalidInput so they do not
// count against the breaker.
type RPCError struct {
	Method  string          `json:"method,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Method != "" {
		return fmt.Sprintf("mcp %s: rpc error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	switch e.Code {
	case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return core.ErrInvalidInput
	}
	return nil
}

// ClientInfo identifies pathforge when opening a session.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo describes the connected server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is what the server answered during the handshake.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	Instructions    string     `json:"instructions,omitempty"`
}

// Tool describes one remote tool from tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentBlock is one content item returned by tools/call. Only text and
// media types are kept; media payloads are dropped.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolsCallResult is returned by tools/call.
type ToolsCallResult struct {
	Content           []ContentBlock `json:"content,omitempty"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Text joins the text content blocks.
func (r ToolsCallResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Resource is one entry of resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

func initializeResultFromSDK(r *mcpsdk.InitializeResult) InitializeResult {
	if r == nil {
		return InitializeResult{}
	}
	out := InitializeResult{ProtocolVersion: r.ProtocolVersion, Instructions: r.Instructions}
	if r.ServerInfo != nil {
		out.ServerInfo = ServerInfo{Name: r.ServerInfo.Name, Version: r.ServerInfo.Version}
	}
	return out
}

func toolFromSDK(t *mcpsdk.Tool) Tool {
	if t == nil {
		return Tool{}
	}
	out := Tool{Name: t.Name, Description: t.Description}
	switch schema := t.InputSchema.(type) {
	case map[string]any:
		out.InputSchema = schema
	case nil:
	default:
		// Servers may hand back a typed schema; round-trip it to a map.
		if raw, err := json.Marshal(schema); err == nil {
			_ = json.Unmarshal(raw, &out.InputSchema)
		}
	}
	return out
}

func resourceFromSDK(r *mcpsdk.Resource) Resource {
	if r == nil {
		return Resource{}
	}
	return Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType}
}

func callResultFromSDK(r *mcpsdk.CallToolResult) ToolsCallResult {
	if r == nil {
		return ToolsCallResult{}
	}
	out := ToolsCallResult{IsError: r.IsError}
	for _, content := range r.Content {
		switch c := content.(type) {
		case *mcpsdk.TextContent:
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: c.Text})
		case *mcpsdk.ImageContent:
			out.Content = append(out.Content, ContentBlock{Type: "image", MimeType: c.MIMEType})
		case *mcpsdk.AudioContent:
			out.Content = append(out.Content, ContentBlock{Type: "audio", MimeType: c.MIMEType})
		}
	}
	if structured, ok := r.StructuredContent.(map[string]any); ok {
		out.StructuredContent = structured
	}
	return out
}
