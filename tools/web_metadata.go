package tools

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pathforge/pathforge/core"
)

// WebMetadata extracts title, description and reading time from a page.
type WebMetadata struct {
	fetch          *fetcher
	wordsPerMinute int
}

// NewWebMetadata creates the web_metadata tool.
func NewWebMetadata(f *fetcher, wordsPerMinute int) *WebMetadata {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 200
	}
	return &WebMetadata{fetch: f, wordsPerMinute: wordsPerMinute}
}

func (w *WebMetadata) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:         WebMetadataName,
		Description:  "Fetches a web page and extracts its title, description and estimated reading time",
		InputSchema:  urlInputSchema,
		OutputSchema: enrichmentOutputSchema,
		Idempotent:   true,
		Tags:         []string{"enrichment", "web"},
	}
}

func (w *WebMetadata) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rawURL, err := stringInput(input, "url")
	if err != nil {
		return nil, err
	}
	page, err := w.fetch.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	meta := extractPageMetadata(page)
	kind := DetectKind(rawURL)
	if kind == KindVideo {
		kind = KindArticle
	}
	return map[string]interface{}{
		"url":         rawURL,
		"kind":        kind,
		"title":       meta.title,
		"description": meta.description,
		"word_count":  meta.words,
		"minutes":     readingMinutes(meta.words, w.wordsPerMinute),
	}, nil
}

type pageMetadata struct {
	title       string
	description string
	// words counts visible text, ignoring scripts, styles and markup.
	words int
}

// hiddenElements hold text that is never rendered as page copy.
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Title:    true,
}

func extractPageMetadata(page string) pageMetadata {
	var meta pageMetadata
	var ogTitle, ogDescription string
	var inTitle, titleSeen bool
	hidden := 0

	z := html.NewTokenizer(strings.NewReader(page))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if tok.DataAtom == atom.Meta {
				key, content := metaAttributes(tok)
				switch key {
				case "description":
					meta.description = content
				case "og:description":
					ogDescription = content
				case "og:title":
					ogTitle = content
				}
				continue
			}
			if tt == html.StartTagToken && hiddenElements[tok.DataAtom] {
				hidden++
				if tok.DataAtom == atom.Title && !titleSeen {
					inTitle = true
				}
			}
		case html.EndTagToken:
			if hiddenElements[tok.DataAtom] && hidden > 0 {
				hidden--
				if tok.DataAtom == atom.Title {
					inTitle = false
				}
			}
		case html.TextToken:
			if inTitle {
				meta.title = cleanText(tok.Data)
				titleSeen = true
				continue
			}
			if hidden == 0 {
				meta.words += len(strings.Fields(tok.Data))
			}
		}
	}

	if meta.title == "" {
		meta.title = ogTitle
	}
	if meta.title == "" {
		if m := mdH1Re.FindStringSubmatch(firstLine(page)); m != nil {
			meta.title = cleanInline(m[1])
		}
	}
	if meta.description == "" {
		meta.description = ogDescription
	}
	return meta
}

// metaAttributes returns the lowercased name or property of a meta tag and
// its content.
func metaAttributes(tok html.Token) (key, content string) {
	for _, attr := range tok.Attr {
		switch strings.ToLower(attr.Key) {
		case "name", "property":
			key = strings.ToLower(strings.TrimSpace(attr.Val))
		case "content":
			content = cleanText(attr.Val)
		}
	}
	return key, content
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func readingMinutes(words, wordsPerMinute int) int {
	if words <= 0 {
		return 1
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}
