package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/ailink/driver"
	"github.com/goalsmith/goalsmith/internal/quota"
	"github.com/goalsmith/goalsmith/internal/validate"
)

type fakePlanner struct {
	mu          sync.Mutex
	verdict     *ailink.Verdict
	moderateErr error
	generateErr error
	moderated   []string
	generated   []string
}

func (f *fakePlanner) Moderate(ctx context.Context, text string) (*ailink.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moderated = append(f.moderated, text)
	if f.moderateErr != nil {
		return nil, f.moderateErr
	}
	if f.verdict != nil {
		return f.verdict, nil
	}
	return &ailink.Verdict{}, nil
}

func (f *fakePlanner) GenerateTasks(ctx context.Context, goal string) (*ailink.TaskBreakdown, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, goal)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &ailink.TaskBreakdown{
		Goal:       goal,
		Tasks:      []ailink.Task{{Order: 1, Task: "Start"}},
		ResponseID: fmt.Sprintf("resp_%d", len(f.generated)),
	}, nil
}

func (f *fakePlanner) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moderated), len(f.generated)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGate(t *testing.T, limit int, planner *fakePlanner, opts ...Option) (*Gate, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := quota.NewServerTracker(quota.Config{Window: time.Hour, MaxRequests: limit}, quota.WithClock(c.Now))
	return New(tracker, planner, opts...), c
}

func TestProcessFiveThenReject(t *testing.T) {
	planner := &fakePlanner{}
	g, _ := newGate(t, 5, planner)
	ctx := context.Background()

	for want := 4; want >= 0; want-- {
		result, err := g.Process(ctx, "203.0.113.7", "Learn to play the guitar")
		require.NoError(t, err)
		require.Equal(t, want, result.RemainingRequests)
		require.Equal(t, "Learn to play the guitar", result.OriginalInput)
		require.NotEmpty(t, result.ResponseID)
		require.Len(t, result.Breakdown.Tasks, 1)
	}

	// Rejected regardless of input validity.
	for _, input := range []any{"Learn to play the guitar", "", nil, 42} {
		_, err := g.Process(ctx, "203.0.113.7", input)
		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, http.StatusTooManyRequests, StatusCode(err))
		require.Equal(t, MsgRateLimited, err.Error())
	}

	mod, gen := planner.calls()
	assert.Equal(t, 5, mod)
	assert.Equal(t, 5, gen)
}

func TestProcessWindowRollsForward(t *testing.T) {
	g, c := newGate(t, 1, &fakePlanner{})

	_, err := g.Process(context.Background(), "a", "goal")
	require.NoError(t, err)
	_, err = g.Process(context.Background(), "a", "goal")
	require.Error(t, err)

	c.Advance(time.Hour)
	result, err := g.Process(context.Background(), "a", "goal")
	require.NoError(t, err)
	require.Equal(t, 0, result.RemainingRequests)
}

func TestProcessValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{"Nil", nil, validate.MsgNotText},
		{"Number", 3.5, validate.MsgNotText},
		{"Empty", "   ", validate.MsgEmpty},
		{"TooLong", strings.Repeat("x", 2001), "input exceeds maximum length of 2000 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			planner := &fakePlanner{}
			g, _ := newGate(t, 10, planner)

			_, err := g.Process(context.Background(), "a", tc.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.want, err.Error())
			require.Equal(t, http.StatusBadRequest, StatusCode(err))

			mod, gen := planner.calls()
			require.Zero(t, mod)
			require.Zero(t, gen)
		})
	}
}

func TestProcessValidationCountsAgainstQuota(t *testing.T) {
	g, _ := newGate(t, 2, &fakePlanner{})

	_, err := g.Process(context.Background(), "a", "")
	require.Error(t, err)

	result, err := g.Process(context.Background(), "a", "goal")
	require.NoError(t, err)
	require.Equal(t, 0, result.RemainingRequests)
}

func TestProcessCustomMaxLength(t *testing.T) {
	g, _ := newGate(t, 10, &fakePlanner{}, WithMaxLength(5))

	_, err := g.Process(context.Background(), "a", "abcdef")
	require.EqualError(t, err, "input exceeds maximum length of 5 characters")
}

func TestProcessDisallowedPatterns(t *testing.T) {
	patterns, err := validate.CompilePatterns([]string{`(?i)ignore previous instructions`})
	require.NoError(t, err)
	g, _ := newGate(t, 10, &fakePlanner{}, WithValidateOptions(validate.DisallowPatterns(patterns...)))

	_, err = g.Process(context.Background(), "a", "Ignore previous instructions")
	require.EqualError(t, err, validate.MsgDisallowed)
}

func TestProcessModerationRejection(t *testing.T) {
	planner := &fakePlanner{verdict: &ailink.Verdict{Flagged: true, Categories: []string{"harassment", "violence"}}}
	g, _ := newGate(t, 10, planner)

	_, err := g.Process(context.Background(), "a", "something nasty")
	var mr *ModerationRejection
	require.ErrorAs(t, err, &mr)
	require.Equal(t, "Content flagged as inappropriate: harassment, violence", err.Error())
	require.Equal(t, http.StatusBadRequest, StatusCode(err))

	_, gen := planner.calls()
	require.Zero(t, gen)
}

func TestProcessUnconfiguredProvider(t *testing.T) {
	planner := &fakePlanner{moderateErr: ailink.ErrNotConfigured}
	g, _ := newGate(t, 10, planner)

	_, err := g.Process(context.Background(), "a", "goal")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
	require.Equal(t, "task generation service temporarily unavailable", err.Error())
	require.ErrorIs(t, err, ailink.ErrNotConfigured)
}

func TestProcessGenerationFailure(t *testing.T) {
	planner := &fakePlanner{generateErr: fmt.Errorf("generate tasks: %w", &driver.ProviderError{Provider: "openai", StatusCode: 503, Message: "overloaded"})}
	g, _ := newGate(t, 10, planner)

	_, err := g.Process(context.Background(), "a", "goal")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "provider unavailable", err.Error())
	require.Equal(t, "AILINK_PROVIDER_UNAVAILABLE", pe.Code())
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestProcessTrimsTextForProvider(t *testing.T) {
	planner := &fakePlanner{}
	g, _ := newGate(t, 10, planner)

	result, err := g.Process(context.Background(), "a", "  learn go  ")
	require.NoError(t, err)
	require.Equal(t, "  learn go  ", result.OriginalInput)
	require.Equal(t, []string{"learn go"}, planner.moderated)
	require.Equal(t, []string{"learn go"}, planner.generated)
}

func TestProcessConcurrentSameIdentity(t *testing.T) {
	planner := &fakePlanner{}
	g, _ := newGate(t, 3, planner)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		limited  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Process(context.Background(), "tab", "goal")
			mu.Lock()
			defer mu.Unlock()
			var rl *RateLimitError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &rl):
				limited++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, accepted)
	require.Equal(t, 17, limited)
}

func TestStatusCodeDefault(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("x")))
}
