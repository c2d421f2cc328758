// Package tools provides the reference tools the pipeline runs: the
// awesome list parser and one enrichment tool per resource kind.
package tools

import (
	"net/http"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/mcp"
)

// Describable is a tool that carries its own registration descriptor.
type Describable interface {
	core.Tool
	Descriptor() core.ToolDescriptor
}

// Options configures the default tool set.
type Options struct {
	Config     core.ToolsConfig
	HTTPClient *http.Client
	// MCP enables repository_readme when set.
	MCP mcp.Caller
}

// Defaults builds the default tools in registration order.
func Defaults(opts Options) []Describable {
	f := newFetcher(opts.HTTPClient, opts.Config)
	defaults := []Describable{
		NewAwesomeListParser(f),
		NewWebMetadata(f, opts.Config.WordsPerMinute),
		NewVideoMetadata(f, opts.Config.VideoOEmbedURL),
	}
	if opts.MCP != nil {
		defaults = append(defaults, NewRepositoryReadme(opts.MCP, opts.Config.WordsPerMinute))
	}
	return defaults
}

// RegisterDefaults registers the default tools with reg.
func RegisterDefaults(reg *core.ToolRegistry, opts Options) error {
	for _, t := range Defaults(opts) {
		if err := reg.Register(t.Descriptor(), t); err != nil {
			return err
		}
	}
	return nil
}
