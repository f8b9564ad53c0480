// Package goals holds the goal and task state that planning results are
// applied to.
package goals

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goalsmith/goalsmith/internal/ailink"
)

// Mode selects how a task list is applied to a goal.
type Mode string

const (
	// ModeNew replaces the goal's tasks.
	ModeNew Mode = "new"
	// ModeAdditional appends to the goal's tasks.
	ModeAdditional Mode = "additional"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNew:
		return ModeNew, nil
	case ModeAdditional, "add", "append":
		return ModeAdditional, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want new or additional)", s)
	}
}

const untitledPrefix = "Untitled_"

var untitledPattern = regexp.MustCompile(`^Untitled_(\d+)$`)

var (
	ErrNoTasks      = errors.New("task list has no tasks")
	ErrTaskIndex    = errors.New("task index out of range")
	ErrEmptyName    = errors.New("goal name cannot be empty")
	ErrInvalidMode  = errors.New("invalid apply mode")
	ErrNilGoal      = errors.New("goal is nil")
	ErrGoalNotFound = errors.New("goal not found")
)

// Task is one step of a goal.
type Task struct {
	Description string    `json:"task_description"`
	Done        bool      `json:"task_status"`
	ResponseID  string    `json:"response_id,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_datetime"`
}

// Prompt is an archived goal prompt together with the generation it produced.
type Prompt struct {
	Prompt     string    `json:"goal_prompt"`
	Name       string    `json:"goal_name"`
	ResponseID string    `json:"response_id,omitempty"`
	CreatedAt  time.Time `json:"created_datetime"`
}

// Goal is a named goal description and its tasks. PromptID is the response
// that produced the current tasks from Prompt, empty until the first
// generation.
type Goal struct {
	ID              string    `json:"id"`
	Name            string    `json:"goal_name"`
	Prompt          string    `json:"goal_prompt"`
	PromptID        string    `json:"goal_prompt_id,omitempty"`
	PromptCreatedAt time.Time `json:"goal_prompt_created_datetime"`
	PreviousPrompts []Prompt  `json:"previous_goal_prompts,omitempty"`
	Tasks           []Task    `json:"tasks"`
	Order           int       `json:"order"`
	CreatedAt       time.Time `json:"created_datetime"`
}

// New returns an empty goal named after the highest Untitled_NN among
// existing, ordered after them.
func New(existing []*Goal, now time.Time) *Goal {
	now = now.UTC()
	return &Goal{
		ID:              uuid.New().String(),
		Name:            NextUntitledName(existing),
		PromptCreatedAt: now,
		Tasks:           []Task{},
		Order:           len(existing) + 1,
		CreatedAt:       now,
	}
}

// NextUntitledName returns Untitled_NN one past the highest existing number.
func NextUntitledName(existing []*Goal) string {
	highest := 0
	for _, g := range existing {
		if g == nil {
			continue
		}
		m := untitledPattern.FindStringSubmatch(g.Name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%02d", untitledPrefix, highest+1)
}

// Rename sets the goal name.
func Rename(g *Goal, name string) error {
	if g == nil {
		return ErrNilGoal
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	g.Name = name
	return nil
}

// SetPrompt replaces the goal description. A prompt that already produced
// tasks is archived first.
func SetPrompt(g *Goal, prompt string, now time.Time) error {
	if g == nil {
		return ErrNilGoal
	}
	if prompt == g.Prompt {
		return nil
	}
	archive(g)
	g.Prompt = prompt
	g.PromptID = ""
	g.PromptCreatedAt = now.UTC()
	return nil
}

// ApplyTaskList applies a generated breakdown to g. ModeNew replaces the
// task list, ModeAdditional appends to it. On error g is unchanged.
func ApplyTaskList(g *Goal, breakdown *ailink.TaskBreakdown, mode Mode, now time.Time) error {
	if g == nil {
		return ErrNilGoal
	}
	if mode != ModeNew && mode != ModeAdditional {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if breakdown == nil || len(breakdown.Tasks) == 0 {
		return ErrNoTasks
	}

	now = now.UTC()
	tasks := make([]Task, 0, len(breakdown.Tasks))
	for _, t := range breakdown.Tasks {
		tasks = append(tasks, Task{
			Description: t.Task,
			ResponseID:  breakdown.ResponseID,
			Order:       t.Order,
			CreatedAt:   now,
		})
	}

	archive(g)
	switch mode {
	case ModeNew:
		g.Tasks = tasks
	case ModeAdditional:
		g.Tasks = append(g.Tasks, tasks...)
	}
	g.PromptID = breakdown.ResponseID
	g.PromptCreatedAt = now
	return nil
}

// SetTaskStatus marks the task at index done or not done.
func SetTaskStatus(g *Goal, index int, done bool) error {
	if g == nil {
		return ErrNilGoal
	}
	if index < 0 || index >= len(g.Tasks) {
		return fmt.Errorf("%w: %d (goal has %d tasks)", ErrTaskIndex, index, len(g.Tasks))
	}
	g.Tasks[index].Done = done
	return nil
}

// Progress returns the number of done tasks and the total.
func (g *Goal) Progress() (done, total int) {
	if g == nil {
		return 0, 0
	}
	for _, t := range g.Tasks {
		if t.Done {
			done++
		}
	}
	return done, len(g.Tasks)
}

func archive(g *Goal) {
	if g.PromptID == "" {
		return
	}
	g.PreviousPrompts = append(g.PreviousPrompts, Prompt{
		Prompt:     g.Prompt,
		Name:       g.Name,
		ResponseID: g.PromptID,
		CreatedAt:  g.PromptCreatedAt,
	})
}
