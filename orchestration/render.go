package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/learningpath"
	"github.com/pathforge/pathforge/tools"
)

const degradedStatus = "degraded (raw data only)"

// buildGuide lays the resources out as numbered steps in path order.
func buildGuide(parsed ParsedListData, plan learningpath.Plan, resources []EnrichedResource, overview string, avgMinutes int) GuidedLearningPath {
	byPosition := make(map[int]EnrichedResource, len(resources))
	for _, e := range resources {
		byPosition[e.Resource.Position] = e
	}

	guide := GuidedLearningPath{
		Topic:            parsed.Topic,
		Language:         parsed.Language,
		Overview:         strings.TrimSpace(overview),
		RecommendedStart: plan.RecommendedStart,
		TimeCommitment:   plan.TimeCommitment,
		Paths:            plan.Paths,
		Steps:            []Step{},
	}

	n := 0
	for _, p := range plan.Paths {
		why := fmt.Sprintf("Part of the %s path (%s).", p.Name, p.Difficulty)
		if len(p.Objectives) > 0 {
			why += " " + p.Objectives[0] + "."
		}
		for _, res := range p.Resources {
			e, ok := byPosition[res.Position]
			if !ok || e.Resource.URL != res.URL {
				e = rawResource(res)
			}
			n++
			guide.Steps = append(guide.Steps, Step{
				Number:         n,
				Title:          e.Title,
				URL:            res.URL,
				Path:           p.Name,
				Type:           kindLabel(e.Kind),
				EstimatedTime:  estimatedTime(e.Minutes, avgMinutes),
				Summary:        summaryText(e.Summary),
				WhyThisMatters: why,
				Degraded:       e.Degraded,
			})
		}
	}
	return guide
}

// Render formats the guide as "markdown" or "json".
func Render(guide GuidedLearningPath, format string) (string, error) {
	switch format {
	case "", FormatMarkdown:
		return RenderMarkdown(guide), nil
	case FormatJSON:
		data, err := json.MarshalIndent(guide, "", "  ")
		if err != nil {
			return "", fmt.Errorf("render json: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format %q: %w", format, core.ErrInvalidInput)
	}
}

// RenderMarkdown writes the guide with one "### Step N" block per resource,
// grouped under a section per learning path.
func RenderMarkdown(guide GuidedLearningPath) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Guided Learning Path: %s\n\n", guide.Topic)
	b.WriteString("## Overview\n\n")
	b.WriteString(guide.Overview)
	b.WriteString("\n\n")
	if guide.RecommendedStart != "" {
		fmt.Fprintf(&b, "**Recommended Start:** %s\n\n", guide.RecommendedStart)
	}
	tc := guide.TimeCommitment
	fmt.Fprintf(&b, "**Time Commitment:** %s at %d hours/week, about %s\n",
		plural(tc.TotalHours, "hour"), tc.WeeklyHours, plural(tc.EstimatedWeeks, "week"))

	paths := make(map[string]learningpath.Path, len(guide.Paths))
	for _, p := range guide.Paths {
		paths[p.Name] = p
	}

	current := ""
	for i, step := range guide.Steps {
		if i == 0 || step.Path != current {
			current = step.Path
			p := paths[current]
			fmt.Fprintf(&b, "\n## %s\n\n", current)
			fmt.Fprintf(&b, "**Difficulty:** %s | **Estimated:** %s\n", p.Difficulty, plural(p.EstimatedHours, "hour"))
			if len(p.Prerequisites) > 0 {
				fmt.Fprintf(&b, "**Prerequisites:** %s\n", strings.Join(p.Prerequisites, ", "))
			}
		}

		fmt.Fprintf(&b, "\n### Step %d: %s\n\n", step.Number, step.Title)
		fmt.Fprintf(&b, "- **Type:** %s\n", step.Type)
		fmt.Fprintf(&b, "- **Estimated Time:** %s\n", step.EstimatedTime)
		fmt.Fprintf(&b, "- **Summary:** %s\n", step.Summary)
		fmt.Fprintf(&b, "- **Why This Matters:** %s\n", step.WhyThisMatters)
		fmt.Fprintf(&b, "- **Link:** %s\n", step.URL)
		if step.Degraded {
			fmt.Fprintf(&b, "- **Status:** %s\n", degradedStatus)
		}
	}
	return b.String()
}

func kindLabel(kind string) string {
	switch kind {
	case tools.KindVideo:
		return "Video"
	case tools.KindRepository:
		return "Repository"
	case tools.KindDocumentation:
		return "Documentation"
	default:
		return "Article"
	}
}

func estimatedTime(minutes, avgMinutes int) string {
	if minutes > 0 {
		return plural(minutes, "minute")
	}
	return fmt.Sprintf("~%s (average)", plural(avgMinutes, "minute"))
}

// summaryText keeps a summary on one line so it fits a list item.
func summaryText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "No summary available."
	}
	return s
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
