// Package learningpath turns categorized resources into ordered learning
// paths. Generation is pure: identical input always produces identical
// output, so it runs without retries or I/O.
package learningpath

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pathforge/pathforge/core"
)

// Difficulty orders paths from Beginner to Advanced.
type Difficulty int

const (
	Beginner Difficulty = iota
	Intermediate
	Advanced
)

func (d Difficulty) String() string {
	switch d {
	case Beginner:
		return "Beginner"
	case Advanced:
		return "Advanced"
	default:
		return "Intermediate"
	}
}

// MarshalText encodes the difficulty label.
func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a difficulty label.
func (d *Difficulty) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "beginner":
		*d = Beginner
	case "intermediate":
		*d = Intermediate
	case "advanced":
		*d = Advanced
	default:
		return fmt.Errorf("unknown difficulty %q: %w", text, core.ErrInvalidInput)
	}
	return nil
}

// Resource is one categorized link.
type Resource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Position    int    `json:"position"`
}

// Path is one learning path: the resources of a single category.
type Path struct {
	Name           string     `json:"name"`
	Difficulty     Difficulty `json:"difficulty"`
	EstimatedHours int        `json:"estimated_hours"`
	Resources      []Resource `json:"resources"`
	Prerequisites  []string   `json:"prerequisites"`
	Objectives     []string   `json:"learning_objectives"`
}

// TimeCommitment estimates the effort to complete every path.
type TimeCommitment struct {
	TotalHours     int `json:"total_hours"`
	WeeklyHours    int `json:"weekly_hours"`
	EstimatedWeeks int `json:"estimated_weeks"`
}

// Plan is the generator's output.
type Plan struct {
	Paths            []Path         `json:"paths"`
	RecommendedStart string         `json:"recommended_starting_point"`
	TimeCommitment   TimeCommitment `json:"time_commitment"`
}

// Config tunes the estimates.
type Config struct {
	AverageMinutesPerResource int
	WeeklyHours               int
}

// DefaultConfig returns 30 minutes per resource and 10 hours a week.
func DefaultConfig() Config {
	return Config{AverageMinutesPerResource: 30, WeeklyHours: 10}
}

// Generator builds learning paths.
type Generator struct {
	config Config
}

// NewGenerator creates a generator. Non-positive values take defaults.
func NewGenerator(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.AverageMinutesPerResource <= 0 {
		cfg.AverageMinutesPerResource = def.AverageMinutesPerResource
	}
	if cfg.WeeklyHours <= 0 {
		cfg.WeeklyHours = def.WeeklyHours
	}
	return &Generator{config: cfg}
}

// Generate groups resources by category in first-seen order, grades and
// estimates each group, and orders the paths by descending resource count.
// Equal counts keep first-seen order.
//
// A resource without a category, or with neither title nor URL, violates
// the parse stage's contract and yields core.ErrInvariantViolation.
func (g *Generator) Generate(resources []Resource) (Plan, error) {
	var order []string
	groups := make(map[string][]Resource)
	for i, r := range resources {
		if strings.TrimSpace(r.Category) == "" {
			return Plan{}, violation(i, "resource has no category")
		}
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.URL) == "" {
			return Plan{}, violation(i, "resource has neither title nor url")
		}
		if _, ok := groups[r.Category]; !ok {
			order = append(order, r.Category)
		}
		groups[r.Category] = append(groups[r.Category], r)
	}

	paths := make([]Path, 0, len(order))
	for _, name := range order {
		members := groups[name]
		paths = append(paths, Path{
			Name:           name,
			Difficulty:     Grade(name, members),
			EstimatedHours: g.hours(len(members)),
			Resources:      members,
		})
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return len(paths[i].Resources) > len(paths[j].Resources)
	})

	for i := range paths {
		paths[i].Prerequisites = prerequisites(paths, i)
		paths[i].Objectives = objectives(paths[i])
	}

	return Plan{
		Paths:            paths,
		RecommendedStart: recommendedStart(paths),
		TimeCommitment:   g.timeCommitment(paths),
	}, nil
}

// hours is count*average minutes rounded half-up to whole hours, at least 1.
func (g *Generator) hours(count int) int {
	h := (count*g.config.AverageMinutesPerResource + 30) / 60
	if h < 1 {
		return 1
	}
	return h
}

func (g *Generator) timeCommitment(paths []Path) TimeCommitment {
	total := 0
	for _, p := range paths {
		total += p.EstimatedHours
	}
	weeks := (total + g.config.WeeklyHours - 1) / g.config.WeeklyHours
	if weeks < 1 {
		weeks = 1
	}
	return TimeCommitment{
		TotalHours:     total,
		WeeklyHours:    g.config.WeeklyHours,
		EstimatedWeeks: weeks,
	}
}

// prerequisites names every path easier than paths[i], in path order.
func prerequisites(paths []Path, i int) []string {
	out := []string{}
	for j, p := range paths {
		if j != i && p.Difficulty < paths[i].Difficulty {
			out = append(out, p.Name)
		}
	}
	return out
}

func objectives(p Path) []string {
	var first string
	switch p.Difficulty {
	case Beginner:
		first = fmt.Sprintf("Understand the fundamentals of %s", p.Name)
	case Advanced:
		first = fmt.Sprintf("Master advanced %s techniques", p.Name)
	default:
		first = fmt.Sprintf("Apply %s in practical projects", p.Name)
	}
	out := []string{first}
	if len(p.Resources) > 0 {
		lead := p.Resources[0].Title
		if lead == "" {
			lead = p.Resources[0].URL
		}
		if len(p.Resources) == 1 {
			out = append(out, fmt.Sprintf("Work through %s", lead))
		} else {
			out = append(out, fmt.Sprintf("Work through %d resources, starting with %s", len(p.Resources), lead))
		}
	}
	return out
}

// recommendedStart picks the easiest path, preferring the larger one.
func recommendedStart(paths []Path) string {
	if len(paths) == 0 {
		return ""
	}
	best := 0
	for i, p := range paths {
		if p.Difficulty < paths[best].Difficulty {
			best = i
		}
	}
	p := paths[best]
	lead := p.Resources[0].Title
	if lead == "" {
		lead = p.Resources[0].URL
	}
	return fmt.Sprintf("Start with %s (%s), beginning with %s", p.Name, p.Difficulty, lead)
}

func violation(index int, msg string) error {
	return &core.FrameworkError{
		Op:      "learningpath.Generate",
		Kind:    "invariant",
		ID:      fmt.Sprintf("resource[%d]", index),
		Message: msg,
		Err:     fmt.Errorf("%s: %w", msg, core.ErrInvariantViolation),
	}
}
