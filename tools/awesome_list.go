package tools

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/pathforge/pathforge/core"
)

const (
	defaultMaxResources = 50
	maxCategories       = 10
	unknownTopic        = "Unknown Topic"
	noDescription       = "No description available"
	generalCategory     = "General"
)

var (
	mdH1Re      = regexp.MustCompile(`^#\s+(.+?)\s*#*$`)
	mdSectionRe = regexp.MustCompile(`^#{2,3}\s+(.+?)\s*#*$`)
	mdItemRe    = regexp.MustCompile(`^\s*[-*+]\s+\[([^\]]+)\]\(([^)\s]+)[^)]*\)\s*(?:[-–—:]\s*)?(.*)$`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdBadgeRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	awesomeRe   = regexp.MustCompile(`(?i)^(awesome-?\s*)`)
	wordRe      = regexp.MustCompile(`[a-z0-9#+.]+`)
)

var skipCategories = map[string]bool{
	"contents":          true,
	"table of contents": true,
	"contributing":      true,
	"license":           true,
	"awesome":           true,
	"related":           true,
	"similar":           true,
	"credits":           true,
	"acknowledgments":   true,
}

// languageKeywords are matched as whole words; the URL is checked first.
var languageKeywords = map[string][]string{
	"JavaScript": {"javascript", "node", "npm", "react", "vue", "angular"},
	"Python":     {"python", "django", "flask", "pandas", "numpy"},
	"Java":       {"java", "spring", "maven", "gradle"},
	"Go":         {"golang", "go", "gin", "beego"},
	"Rust":       {"rust", "cargo", "crates"},
	"PHP":        {"php", "laravel", "symfony", "composer"},
	"Ruby":       {"ruby", "rails", "gem"},
	"C#":         {"c#", "csharp", ".net", "dotnet"},
	"C++":        {"c++", "cpp"},
	"Swift":      {"swift", "ios", "macos"},
	"Kotlin":     {"kotlin", "android"},
	"TypeScript": {"typescript", "ts"},
}

// AwesomeListParser fetches a curated list document and extracts its
// topic, categories and categorized resource links.
type AwesomeListParser struct {
	fetch *fetcher
}

// NewAwesomeListParser creates the parser tool.
func NewAwesomeListParser(f *fetcher) *AwesomeListParser {
	return &AwesomeListParser{fetch: f}
}

// Descriptor returns the registration descriptor.
func (p *AwesomeListParser) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:         AwesomeListParserName,
		Description:  "Parses an awesome list to extract its topic, categories and resource links",
		InputSchema:  parserInputSchema,
		OutputSchema: parserOutputSchema,
		Idempotent:   true,
		Tags:         []string{"parsing", "awesome-list"},
	}
}

func (p *AwesomeListParser) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rawURL, err := stringInput(input, "url")
	if err != nil {
		return nil, err
	}
	maxResources := defaultMaxResources
	if n, ok := intInput(input, "max_resources"); ok && n > 0 {
		maxResources = n
	}

	content, err := p.fetch.get(ctx, rawListURL(rawURL))
	if err != nil {
		return nil, err
	}

	list := ParseAwesomeList(content, rawURL, maxResources)
	if len(list.Resources) == 0 {
		return nil, core.NewToolError("UNPARSEABLE", core.CategoryInputError,
			fmt.Errorf("%w: no categorized resource links found at %s", core.ErrInvalidInput, rawURL))
	}
	return list.toMap(), nil
}

// ParsedList is the parser's result.
type ParsedList struct {
	Topic          string
	Description    string
	Language       string
	Categories     []string
	Resources      []ParsedResource
	TotalItems     int
	ContextSummary string
}

// ParsedResource is one link under a category heading.
type ParsedResource struct {
	Title       string
	URL         string
	Description string
	Category    string
	Position    int
}

func (l ParsedList) toMap() map[string]interface{} {
	resources := make([]interface{}, 0, len(l.Resources))
	for _, r := range l.Resources {
		resources = append(resources, map[string]interface{}{
			"title":       r.Title,
			"url":         r.URL,
			"description": r.Description,
			"category":    r.Category,
			"position":    r.Position,
		})
	}
	categories := make([]interface{}, 0, len(l.Categories))
	for _, c := range l.Categories {
		categories = append(categories, c)
	}
	return map[string]interface{}{
		"topic":           l.Topic,
		"description":     l.Description,
		"language":        l.Language,
		"categories":      categories,
		"resources":       resources,
		"total_items":     l.TotalItems,
		"context_summary": l.ContextSummary,
	}
}

// ParseAwesomeList extracts list data from a Markdown document. Only
// http(s) links in list items are resources; links before the first
// section heading are filed under "General". Sections past the first
// maxCategories are dropped with their links.
func ParseAwesomeList(content, sourceURL string, maxResources int) ParsedList {
	list := ParsedList{
		Topic:       extractTopic(content, sourceURL),
		Description: extractDescription(content),
		Language:    detectLanguage(content, sourceURL),
	}

	seen := make(map[string]bool)
	section := ""
	skipping := false
	inCode := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		if m := mdSectionRe.FindStringSubmatch(trimmed); m != nil {
			section = cleanInline(m[1])
			skipping = skipCategories[strings.ToLower(section)]
			if !skipping && !seen[section] {
				if len(list.Categories) < maxCategories {
					seen[section] = true
					list.Categories = append(list.Categories, section)
				} else {
					// Past the category cap: drop the section and its links.
					skipping = true
				}
			}
			continue
		}
		if skipping {
			continue
		}
		m := mdItemRe.FindStringSubmatch(line)
		if m == nil || !isHTTPURL(m[2]) {
			continue
		}
		list.TotalItems++
		if len(list.Resources) >= maxResources {
			continue
		}
		category := section
		if category == "" {
			category = generalCategory
		}
		list.Resources = append(list.Resources, ParsedResource{
			Title:       cleanInline(m[1]),
			URL:         m[2],
			Description: cleanInline(m[3]),
			Category:    category,
			Position:    len(list.Resources),
		})
	}

	list.ContextSummary = contextSummary(list)
	return list
}

func extractTopic(content, sourceURL string) string {
	for _, line := range strings.Split(content, "\n") {
		if m := mdH1Re.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if topic := stripAwesome(cleanInline(m[1])); topic != "" {
				return topic
			}
		}
	}
	if title := extractPageMetadata(content).title; title != "" {
		if topic := stripAwesome(title); topic != "" {
			return topic
		}
	}
	if u, err := url.Parse(sourceURL); err == nil {
		for _, part := range strings.Split(u.Path, "/") {
			if strings.HasPrefix(strings.ToLower(part), "awesome-") {
				words := strings.Fields(strings.ReplaceAll(part[len("awesome-"):], "-", " "))
				for i, w := range words {
					words[i] = strings.ToUpper(w[:1]) + w[1:]
				}
				return strings.Join(words, " ")
			}
		}
	}
	return unknownTopic
}

func stripAwesome(s string) string {
	return strings.TrimSpace(awesomeRe.ReplaceAllString(s, ""))
}

// extractDescription returns the first prose line after the title,
// skipping badges, blank lines and blockquote markers.
func extractDescription(content string) string {
	afterTitle := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !afterTitle {
			afterTitle = mdH1Re.MatchString(trimmed)
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			break
		}
		trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, ">"))
		trimmed = strings.TrimSpace(mdBadgeRe.ReplaceAllString(trimmed, ""))
		if trimmed == "" || strings.HasPrefix(trimmed, "<") || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		return cleanInline(trimmed)
	}
	return noDescription
}

func detectLanguage(content, sourceURL string) string {
	urlWords := wordSet(strings.ToLower(strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(sourceURL)))
	langs := make([]string, 0, len(languageKeywords))
	for lang := range languageKeywords {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		for _, kw := range languageKeywords[lang] {
			if urlWords[kw] > 0 {
				return lang
			}
		}
	}

	counts := wordSet(strings.ToLower(content))
	best, bestScore := "General", 0
	for _, lang := range langs {
		score := 0
		for _, kw := range languageKeywords[lang] {
			score += counts[kw]
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}

func wordSet(s string) map[string]int {
	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(s, -1) {
		counts[strings.Trim(w, ".")]++
		if strings.HasPrefix(w, ".") {
			counts[w]++
		}
	}
	return counts
}

func contextSummary(l ParsedList) string {
	parts := []string{fmt.Sprintf("This is an Awesome List focused on %s.", l.Topic)}
	if l.Description != noDescription {
		parts = append(parts, l.Description)
	}
	if l.Language != "General" {
		parts = append(parts, fmt.Sprintf("It primarily covers %s related resources.", l.Language))
	}
	if n := len(l.Categories); n > 0 {
		text := strings.Join(l.Categories, ", ")
		if n > 3 {
			text = fmt.Sprintf("%s, and %d other categories", strings.Join(l.Categories[:3], ", "), n-3)
		}
		parts = append(parts, fmt.Sprintf("Main categories include: %s.", text))
	}
	if l.TotalItems > 0 {
		parts = append(parts, fmt.Sprintf("The list contains approximately %d curated resources.", l.TotalItems))
	}
	return strings.Join(parts, " ")
}

// cleanInline drops Markdown link and emphasis syntax.
func cleanInline(s string) string {
	s = mdBadgeRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	return strings.TrimSpace(s)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// rawListURL maps a GitHub repository URL to its raw README so the parser
// reads Markdown rather than the rendered page.
func rawListURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
		return rawURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return rawURL
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/HEAD/README.md", parts[0], parts[1])
}

func intInput(input map[string]interface{}, key string) (int, bool) {
	switch v := input[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
