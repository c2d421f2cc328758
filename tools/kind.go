package tools

import (
	"net/url"
	"strings"
)

// Resource kinds.
const (
	KindArticle       = "article"
	KindDocumentation = "documentation"
	KindVideo         = "video"
	KindRepository    = "repository"
)

var videoHosts = map[string]bool{
	"youtube.com":   true,
	"m.youtube.com": true,
	"youtu.be":      true,
	"vimeo.com":     true,
}

var repositoryHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
	"codeberg.org":  true,
}

// DetectKind classifies a resource URL by host and path.
func DetectKind(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindArticle
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(strings.Trim(u.Path, "/"))

	switch {
	case videoHosts[host]:
		return KindVideo
	case repositoryHosts[host] && len(strings.Split(path, "/")) == 2:
		return KindRepository
	case strings.HasPrefix(host, "docs.") || strings.HasPrefix(host, "developer.") ||
		strings.HasSuffix(host, ".readthedocs.io") || host == "pkg.go.dev" ||
		strings.HasPrefix(path, "docs/") || strings.Contains(path, "/docs/") || path == "docs":
		return KindDocumentation
	default:
		return KindArticle
	}
}

// ToolForKind returns the enrichment tool for a resource kind. Repository
// links fall back to web_metadata when no MCP endpoint is configured.
func ToolForKind(kind string, mcpEnabled bool) string {
	switch kind {
	case KindVideo:
		return VideoMetadataName
	case KindRepository:
		if mcpEnabled {
			return RepositoryReadmeName
		}
		return WebMetadataName
	default:
		return WebMetadataName
	}
}
