package learningpath

import (
	"strings"
	"unicode"
)

var advancedSignals = []string{
	"advanced", "expert", "internals", "performance", "optimization",
	"optimisation", "distributed", "concurrency", "architecture", "compiler",
	"compilers", "security", "deep dive", "scaling", "scalability",
	"production", "profiling", "low level",
}

var beginnerSignals = []string{
	"beginner", "beginners", "introduction", "intro", "getting started",
	"basics", "fundamentals", "tutorial", "tutorials", "first steps", "101",
	"primer", "crash course", "essentials", "learn", "learning",
}

// Grade assigns a difficulty from keyword signals in the category name and
// its resources' titles and descriptions. Advanced signals win ties; no
// signal at all means Intermediate.
func Grade(category string, resources []Resource) Difficulty {
	var sb strings.Builder
	sb.WriteString(category)
	for _, r := range resources {
		sb.WriteByte(' ')
		sb.WriteString(r.Title)
		sb.WriteByte(' ')
		sb.WriteString(r.Description)
	}
	text := normalize(sb.String())

	advanced := countSignals(text, advancedSignals)
	beginner := countSignals(text, beginnerSignals)
	switch {
	case advanced > 0 && advanced >= beginner:
		return Advanced
	case beginner > 0:
		return Beginner
	default:
		return Intermediate
	}
}

// normalize lower-cases s and collapses everything but letters and digits
// to single spaces, padded on both ends for whole-word matching.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

func countSignals(text string, signals []string) int {
	n := 0
	for _, s := range signals {
		n += strings.Count(text, " "+s+" ")
	}
	return n
}
