//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/config"
	"github.com/goalsmith/goalsmith/internal/goals"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")
	require.NoError(t, store.Close())
}

func TestGoalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	g := goals.New(nil, now)
	require.NoError(t, goals.SetPrompt(g, "Learn to play the guitar", now))
	require.NoError(t, goals.ApplyTaskList(g, &ailink.TaskBreakdown{
		ResponseID: "resp_1",
		Tasks:      []ailink.Task{{Order: 1, Task: "Buy a guitar"}, {Order: 2, Task: "Learn three chords"}},
	}, goals.ModeNew, now))
	require.NoError(t, goals.SetPrompt(g, "Learn to play the guitar well", now.Add(time.Minute)))
	require.NoError(t, goals.SetTaskStatus(g, 1, true))
	require.NoError(t, store.SaveGoal(ctx, g))

	loaded, err := store.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, loaded.Name)
	assert.Equal(t, g.Prompt, loaded.Prompt)
	assert.Equal(t, g.PromptCreatedAt, loaded.PromptCreatedAt)
	assert.Equal(t, g.CreatedAt, loaded.CreatedAt)
	assert.Equal(t, g.Tasks, loaded.Tasks)
	assert.Equal(t, g.PreviousPrompts, loaded.PreviousPrompts)

	// Saving again replaces the task list.
	require.NoError(t, goals.ApplyTaskList(g, &ailink.TaskBreakdown{
		ResponseID: "resp_2",
		Tasks:      []ailink.Task{{Order: 1, Task: "Practise daily"}},
	}, goals.ModeNew, now))
	require.NoError(t, store.SaveGoal(ctx, g))

	loaded, err = store.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, "Practise daily", loaded.Tasks[0].Description)
}

func TestListFindDelete(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)
	now := time.Now().UTC()

	var all []*goals.Goal
	for i := 0; i < 3; i++ {
		g := goals.New(all, now)
		all = append(all, g)
		require.NoError(t, store.SaveGoal(ctx, g))
	}

	listed, err := store.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "Untitled_01", listed[0].Name)
	assert.Equal(t, "Untitled_03", listed[2].Name)

	found, err := store.FindGoal(ctx, "Untitled_02")
	require.NoError(t, err)
	assert.Equal(t, all[1].ID, found.ID)

	found, err = store.FindGoal(ctx, all[2].ID[:8])
	require.NoError(t, err)
	assert.Equal(t, all[2].ID, found.ID)

	_, err = store.FindGoal(ctx, "nope")
	assert.ErrorIs(t, err, goals.ErrGoalNotFound)

	require.NoError(t, store.DeleteGoal(ctx, all[0].ID))
	assert.ErrorIs(t, store.DeleteGoal(ctx, all[0].ID), goals.ErrGoalNotFound)
	_, err = store.GetGoal(ctx, all[0].ID)
	assert.ErrorIs(t, err, goals.ErrGoalNotFound)

	n, err := store.DeleteAllGoals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	listed, err = store.ListGoals(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
