package ailink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/ailink/content"
	"github.com/goalsmith/goalsmith/internal/ailink/driver"
	"github.com/goalsmith/goalsmith/internal/ailink/driver/openai"
	"github.com/goalsmith/goalsmith/internal/metrics"
	"github.com/goalsmith/goalsmith/internal/observability"
)

const organiserInstructions = "You are an expert organiser. You have excellent understanding of all topics and your main function is to break down goals into manageable, clear and concise tasks. Ensure you don't generate more than %d tasks per goal. Each task should only be one sentence (maximum) to describe the task."

const goalPromptTemplate = `I have a goal described between the ### characters. Break that goal down into a maximum of %d separate tasks:
###
%s
###`

// Task is one step of a breakdown.
type Task struct {
	Order int    `json:"order"`
	Task  string `json:"task"`
}

// TaskBreakdown is the structured answer for a goal. ResponseID identifies
// the provider response that produced it.
type TaskBreakdown struct {
	Goal       string `json:"goal"`
	Tasks      []Task `json:"tasks"`
	ResponseID string `json:"-"`
}

// Verdict is the moderation outcome. Categories lists flagged categories in
// sorted order.
type Verdict struct {
	Flagged    bool
	Categories []string
}

// Planner moderates goal text and breaks goals down into tasks.
type Planner struct {
	cfg       Config
	driver    driver.Driver
	moderator driver.Moderator
}

// PlannerOption customises a Planner.
type PlannerOption func(*Planner)

// WithDriver replaces the completion driver.
func WithDriver(d driver.Driver) PlannerOption {
	return func(p *Planner) {
		p.driver = d
	}
}

// WithModerator replaces the moderation backend.
func WithModerator(m driver.Moderator) PlannerOption {
	return func(p *Planner) {
		p.moderator = m
	}
}

// WithHTTPClient sets the HTTP client used by the default OpenAI driver.
func WithHTTPClient(client *http.Client) PlannerOption {
	return func(p *Planner) {
		if c, ok := p.driver.(*openai.Client); ok {
			c.HTTPClient = client
		}
	}
}

// NewPlanner builds a planner backed by the OpenAI driver. Without an API key
// the planner is unconfigured and every call returns ErrNotConfigured.
func NewPlanner(cfg Config, opts ...PlannerOption) *Planner {
	cfg = cfg.withDefaults()
	p := &Planner{cfg: cfg}

	if strings.TrimSpace(cfg.APIKey) != "" {
		client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
		client.Timeout = cfg.Timeout
		p.driver = client
		p.moderator = client
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Configured reports whether the planner can reach a provider.
func (p *Planner) Configured() bool {
	return p != nil && p.driver != nil && p.moderator != nil
}

// Model returns the completion model name.
func (p *Planner) Model() string {
	if p == nil {
		return ""
	}
	return p.cfg.Model
}

// MaxTasks returns the task cap applied to every breakdown.
func (p *Planner) MaxTasks() int {
	if p == nil {
		return DefaultMaxTasks
	}
	return p.cfg.MaxTasks
}

// Moderate classifies text. A flagged verdict is not an error.
func (p *Planner) Moderate(ctx context.Context, text string) (*Verdict, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := p.moderator.Moderate(ctx, &driver.ModerationRequest{
		Model:    p.cfg.ModerationModel,
		Input:    text,
		Metadata: requestMetadata(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("moderate: %w", err)
	}

	flagged := map[string]struct{}{}
	verdict := &Verdict{}
	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}
		verdict.Flagged = true
		for category, hit := range result.Categories {
			if hit {
				flagged[category] = struct{}{}
			}
		}
	}
	for category := range flagged {
		verdict.Categories = append(verdict.Categories, category)
	}
	sort.Strings(verdict.Categories)

	if verdict.Flagged && observability.ServerLogger != nil {
		observability.ServerLogger.Info("Goal flagged by moderation",
			zap.Strings("categories", verdict.Categories),
			zap.Int("input_length", utf8.RuneCountInString(text)))
	}

	return verdict, nil
}

// GenerateTasks asks the model for a task breakdown of goal. Tasks come back
// sorted by order and capped at MaxTasks.
func (p *Planner) GenerateTasks(ctx context.Context, goal string) (*TaskBreakdown, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	breakdown, err := p.generate(ctx, goal)
	duration := time.Since(start)

	tasks := 0
	if breakdown != nil {
		tasks = len(breakdown.Tasks)
	}
	metrics.RecordGeneration(p.cfg.Model, err == nil, duration, tasks)

	if observability.ServerLogger != nil {
		fields := []zap.Field{
			zap.String("model", p.cfg.Model),
			zap.Duration("duration", duration),
			zap.Int("input_length", utf8.RuneCountInString(goal)),
		}
		if err != nil {
			fields = append(fields, zap.String("error_code", Code(err)), zap.Error(err))
			observability.ServerLogger.Warn("Task generation failed", fields...)
		} else {
			fields = append(fields, zap.Int("tasks", tasks), zap.String("response_id", breakdown.ResponseID))
			observability.ServerLogger.Debug("Task generation completed", fields...)
		}
	}

	return breakdown, err
}

func (p *Planner) generate(ctx context.Context, goal string) (*TaskBreakdown, error) {
	req := &driver.Request{
		Model: p.cfg.Model,
		Messages: []content.Message{
			content.Text("system", fmt.Sprintf(organiserInstructions, p.cfg.MaxTasks)),
			content.Text("user", fmt.Sprintf(goalPromptTemplate, p.cfg.MaxTasks, goal)),
		},
		ResponseFormat: &driver.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &driver.JSONSchema{
				Name:   taskBreakdownSchemaName,
				Strict: true,
				Schema: taskBreakdownSchema(),
			},
		},
		Metadata: requestMetadata(ctx),
	}

	resp, err := p.driver.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}

	if strings.TrimSpace(resp.Refusal) != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, resp.Refusal)
	}
	if resp.FinishReason != "" && resp.FinishReason != "stop" {
		return nil, fmt.Errorf("%w: finish reason %q", ErrIncomplete, resp.FinishReason)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response content", ErrIncomplete)
	}

	var breakdown TaskBreakdown
	if err := json.Unmarshal([]byte(raw), &breakdown); err != nil {
		return nil, newRawResponseError(err, raw)
	}

	breakdown.Goal = strings.TrimSpace(breakdown.Goal)
	breakdown.Tasks = normalizeTasks(breakdown.Tasks, p.cfg.MaxTasks)
	if len(breakdown.Tasks) == 0 {
		return nil, newRawResponseError(fmt.Errorf("no tasks returned"), raw)
	}
	breakdown.ResponseID = resp.ID

	return &breakdown, nil
}

// normalizeTasks drops blank tasks, sorts by order (stable for ties) and caps
// the list at limit.
func normalizeTasks(tasks []Task, limit int) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		t.Task = strings.TrimSpace(t.Task)
		if t.Task == "" {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type requestIDKey struct{}

// WithRequestID tags provider calls made with ctx with the inbound request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestMetadata(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return map[string]string{"request_id": id}
	}
	return nil
}
