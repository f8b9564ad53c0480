package output

import (
	"fmt"
	"strings"

	"github.com/goalsmith/goalsmith/internal/goals"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders goals.
type Formatter interface {
	// FormatGoals renders a goal overview, one entry per goal.
	FormatGoals(list []*goals.Goal) (string, error)
	// FormatGoal renders a single goal with its tasks.
	FormatGoal(goal *goals.Goal) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func progressLabel(g *goals.Goal) string {
	done, total := g.Progress()
	if total == 0 {
		return "no tasks"
	}
	return fmt.Sprintf("%d/%d done", done, total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}
