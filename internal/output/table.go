package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/goalsmith/goalsmith/internal/goals"
)

// TableFormatter renders goals as ASCII tables.
type TableFormatter struct{}

// FormatGoals renders a goal overview table.
func (f *TableFormatter) FormatGoals(list []*goals.Goal) (string, error) {
	if len(list) == 0 {
		return "No goals yet", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Progress", "Created"})

	for _, g := range list {
		if g == nil {
			continue
		}
		t.AppendRow(table.Row{
			shortID(g.ID),
			g.Name,
			progressLabel(g),
			g.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d goals", len(list)), ""})
	return t.Render(), nil
}

// FormatGoal renders a goal header and its task table.
func (f *TableFormatter) FormatGoal(g *goals.Goal) (string, error) {
	if g == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)\n", g.Name, shortID(g.ID)))
	if strings.TrimSpace(g.Prompt) != "" {
		sb.WriteString(fmt.Sprintf("Goal: %s\n", g.Prompt))
	}

	if len(g.Tasks) == 0 {
		sb.WriteString("No tasks yet. Generate tasks with `goal plan`.\n")
		return sb.String(), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Done", "Task"})
	for i, task := range g.Tasks {
		t.AppendRow(table.Row{i + 1, checkbox(task.Done), task.Description})
	}
	t.AppendFooter(table.Row{"", "", progressLabel(g)})

	sb.WriteString(t.Render())
	return sb.String(), nil
}
