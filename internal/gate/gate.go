// Package gate guards task generation: every request passes a quota check,
// input validation and moderation before the model is called.
package gate

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/metrics"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/validate"
)

// Limiter is the authoritative per-identity quota.
type Limiter interface {
	CheckLimit(identity string) bool
	Remaining(identity string) int
}

// Planner is the language model collaborator.
type Planner interface {
	Moderate(ctx context.Context, text string) (*ailink.Verdict, error)
	GenerateTasks(ctx context.Context, goal string) (*ailink.TaskBreakdown, error)
}

// Result is an accepted request.
type Result struct {
	Breakdown         *ailink.TaskBreakdown
	OriginalInput     string
	ResponseID        string
	RemainingRequests int
}

// Gate runs the rate check, validation, moderation and generation stages in
// that order. The first failing stage ends the request; nothing is retried.
type Gate struct {
	limiter      Limiter
	planner      Planner
	maxLength    int
	validateOpts []validate.Option
}

// Option customises a Gate.
type Option func(*Gate)

// WithMaxLength sets the input length limit in characters.
func WithMaxLength(n int) Option {
	return func(g *Gate) {
		g.maxLength = n
	}
}

// WithValidateOptions adds validation policy options.
func WithValidateOptions(opts ...validate.Option) Option {
	return func(g *Gate) {
		g.validateOpts = append(g.validateOpts, opts...)
	}
}

// New returns a gate over limiter and planner.
func New(limiter Limiter, planner Planner, opts ...Option) *Gate {
	g := &Gate{
		limiter:   limiter,
		planner:   planner,
		maxLength: validate.DefaultMaxLength,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Process handles one generation request from identity. input is the decoded
// request field and may be any JSON value; nil stands for an unreadable body.
// Errors are *RateLimitError, *ValidationError, *ModerationRejection or
// *ProviderError.
func (g *Gate) Process(ctx context.Context, identity string, input any) (*Result, error) {
	if !g.limiter.CheckLimit(identity) {
		return nil, g.reject(metrics.StageRateLimit, identity, &RateLimitError{Identity: identity})
	}

	if result := validate.ValidateText(input, g.maxLength, g.validateOpts...); !result.IsValid {
		return nil, g.reject(metrics.StageValidation, identity, &ValidationError{Message: result.Error})
	}

	original := input.(string)
	text := strings.TrimSpace(original)

	verdict, err := g.planner.Moderate(ctx, text)
	if err != nil {
		return nil, g.reject(metrics.StageModeration, identity, &ProviderError{Err: err})
	}
	if verdict.Flagged {
		return nil, g.reject(metrics.StageModeration, identity, &ModerationRejection{Categories: verdict.Categories})
	}

	breakdown, err := g.planner.GenerateTasks(ctx, text)
	if err != nil {
		return nil, g.reject(metrics.StageGeneration, identity, &ProviderError{Err: err})
	}

	metrics.RecordGateOutcome(metrics.StageAccepted, true)
	remaining := g.limiter.Remaining(identity)
	if observability.ServerLogger != nil {
		observability.ServerLogger.Debug("Goal accepted",
			zap.String("identity", identity),
			zap.Int("input_length", utf8.RuneCountInString(text)),
			zap.Int("tasks", len(breakdown.Tasks)),
			zap.Int("remaining", remaining))
	}

	return &Result{
		Breakdown:         breakdown,
		OriginalInput:     original,
		ResponseID:        breakdown.ResponseID,
		RemainingRequests: remaining,
	}, nil
}

func (g *Gate) reject(stage, identity string, err error) error {
	metrics.RecordGateOutcome(stage, false)
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Goal rejected",
			zap.String("stage", stage),
			zap.String("identity", identity),
			zap.Int("status", StatusCode(err)),
			zap.String("reason", err.Error()))
	}
	return err
}
