package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalsmith/goalsmith/internal/client"
	"github.com/goalsmith/goalsmith/internal/goals"
	"github.com/goalsmith/goalsmith/internal/quota"
)

type memoryRepo struct {
	goals map[string]*goals.Goal
	saved int
}

func newMemoryRepo(list ...*goals.Goal) *memoryRepo {
	repo := &memoryRepo{goals: map[string]*goals.Goal{}}
	for _, g := range list {
		repo.goals[g.Name] = g
	}
	return repo
}

func (r *memoryRepo) FindGoal(ctx context.Context, ref string) (*goals.Goal, error) {
	g, ok := r.goals[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", goals.ErrGoalNotFound, ref)
	}
	clone := *g
	clone.Tasks = append([]goals.Task(nil), g.Tasks...)
	return &clone, nil
}

func (r *memoryRepo) SaveGoal(ctx context.Context, g *goals.Goal) error {
	r.goals[g.Name] = g
	r.saved++
	return nil
}

func newGoal(name, prompt string) *goals.Goal {
	g := goals.New(nil, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	g.Name = name
	g.Prompt = prompt
	return g
}

// taskServer answers generation requests; inputs containing "fail" get a
// validation error.
func taskServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		var body struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if bytes.Contains([]byte(body.Input), []byte("fail")) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"input contains disallowed content","code":"VALIDATION_FAILED","request_id":"r-1"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"goal": body.Input,
				"tasks": []map[string]any{
					{"order": 1, "task": "Pick a route"},
					{"order": 2, "task": "Book a bed"},
				},
			},
			"originalInput":     body.Input,
			"response_id":       fmt.Sprintf("resp_%d", n),
			"remainingRequests": 10 - int(n),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlanGoalsStoresGeneratedTasks(t *testing.T) {
	var calls int32
	srv := taskServer(t, &calls)
	repo := newMemoryRepo(newGoal("walk", "Walk the coast path"))
	c := client.New(srv.URL)

	var out bytes.Buffer
	now := func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	err := planGoals(context.Background(), &out, repo, c, []string{"walk"}, goals.ModeNew, now)
	require.NoError(t, err)

	saved := repo.goals["walk"]
	require.Len(t, saved.Tasks, 2)
	assert.Equal(t, "Pick a route", saved.Tasks[0].Description)
	assert.Equal(t, "resp_1", saved.PromptID)
	assert.Contains(t, out.String(), "1. [ ] Pick a route")
	assert.Contains(t, out.String(), "Requests remaining: 4")
}

func TestPlanGoalsAdditionalModeAppends(t *testing.T) {
	var calls int32
	srv := taskServer(t, &calls)
	goal := newGoal("walk", "Walk the coast path")
	goal.Tasks = []goals.Task{{Description: "Buy boots", Done: true}}
	repo := newMemoryRepo(goal)

	var out bytes.Buffer
	err := planGoals(context.Background(), &out, repo, client.New(srv.URL), []string{"walk"}, goals.ModeAdditional, time.Now)
	require.NoError(t, err)

	saved := repo.goals["walk"]
	require.Len(t, saved.Tasks, 3)
	assert.True(t, saved.Tasks[0].Done)
	assert.Equal(t, "Book a bed", saved.Tasks[2].Description)
}

func TestPlanGoalsKeepsFailedGoalsUnchanged(t *testing.T) {
	var calls int32
	srv := taskServer(t, &calls)
	repo := newMemoryRepo(newGoal("good", "Learn to juggle"), newGoal("bad", "please fail"))

	var out bytes.Buffer
	err := planGoals(context.Background(), &out, repo, client.New(srv.URL), []string{"bad", "good", "missing"}, goals.ModeNew, time.Now)
	require.Error(t, err)
	assert.Equal(t, "2 of 3 goal(s) failed", err.Error())

	assert.Empty(t, repo.goals["bad"].Tasks)
	assert.Len(t, repo.goals["good"].Tasks, 2)
	assert.Equal(t, 1, repo.saved)
	assert.Contains(t, out.String(), "✗ bad: input contains disallowed content")
	assert.Contains(t, out.String(), "✗ missing:")
}

func TestPlanGoalsAdvisoryLimitSkipsServer(t *testing.T) {
	var calls int32
	srv := taskServer(t, &calls)
	repo := newMemoryRepo(newGoal("a", "First goal"), newGoal("b", "Second goal"))
	tracker := quota.NewClientTracker(quota.Config{Window: time.Hour, MaxRequests: 1})
	c := client.New(srv.URL, client.WithTracker(tracker))

	var out bytes.Buffer
	err := planGoals(context.Background(), &out, repo, c, []string{"a", "b"}, goals.ModeNew, time.Now)
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, out.String(), "✗ b: Rate limit exceeded. Please try again later.")
	assert.Contains(t, out.String(), "Requests remaining: 0")
}

func TestPlanGoalsRequiresPrompt(t *testing.T) {
	var calls int32
	srv := taskServer(t, &calls)
	repo := newMemoryRepo(newGoal("empty", "  "))

	var out bytes.Buffer
	err := planGoals(context.Background(), &out, repo, client.New(srv.URL), []string{"empty"}, goals.ModeNew, time.Now)
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Contains(t, out.String(), "✗ empty: goal has no description; set one with 'goalsmith goal prompt'")
}

func TestParseTaskNumber(t *testing.T) {
	index, err := parseTaskNumber("2", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	_, err = parseTaskNumber("0", 3)
	assert.ErrorIs(t, err, goals.ErrTaskIndex)

	_, err = parseTaskNumber("4", 3)
	assert.ErrorIs(t, err, goals.ErrTaskIndex)

	_, err = parseTaskNumber("two", 3)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCodeFor(err, foundry.ExitFailure))
	assert.Equal(t, `invalid task number "two"`, planErrorMessage(err))
}
