package output

import (
	"fmt"
	"strings"

	"github.com/goalsmith/goalsmith/internal/goals"
)

// MarkdownFormatter renders goals as Markdown.
type MarkdownFormatter struct{}

// FormatGoals renders the goal list as a markdown table.
func (f *MarkdownFormatter) FormatGoals(list []*goals.Goal) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Name | Progress |\n")
	sb.WriteString("|----|------|----------|\n")
	for _, g := range list {
		if g == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(shortID(g.ID)),
			escapeMarkdownCell(g.Name),
			escapeMarkdownCell(progressLabel(g)),
		))
	}
	return sb.String(), nil
}

// FormatGoal renders a goal as a heading and a task checklist.
func (f *MarkdownFormatter) FormatGoal(g *goals.Goal) (string, error) {
	if g == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", g.Name))
	if prompt := strings.TrimSpace(g.Prompt); prompt != "" {
		sb.WriteString(fmt.Sprintf("> %s\n\n", strings.ReplaceAll(prompt, "\n", "\n> ")))
	}
	for _, task := range g.Tasks {
		sb.WriteString(fmt.Sprintf("- %s %s\n", checkbox(task.Done), task.Description))
	}
	if len(g.Tasks) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Progress**: %s\n", progressLabel(g)))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
