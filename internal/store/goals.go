package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goalsmith/goalsmith/internal/goals"
)

var errNotInitialized = errors.New("store is not initialized")

// SaveGoal inserts or replaces a goal together with its tasks and prompt
// history.
func (s *Store) SaveGoal(ctx context.Context, g *goals.Goal) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return errors.New("goal id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save goal: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO goals (id, name, prompt, prompt_id, prompt_created_at, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			prompt = excluded.prompt,
			prompt_id = excluded.prompt_id,
			prompt_created_at = excluded.prompt_created_at,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at
	`, g.ID, g.Name, g.Prompt, g.PromptID, toMillis(g.PromptCreatedAt), g.Order,
		toMillis(g.CreatedAt), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("store goal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE goal_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	for i, t := range g.Tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (goal_id, position, description, done, response_id, task_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, g.ID, i, t.Description, boolToInt(t.Done), t.ResponseID, t.Order, toMillis(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("store task %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_prompts WHERE goal_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear prompts: %w", err)
	}
	for i, p := range g.PreviousPrompts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO goal_prompts (goal_id, position, prompt, name, response_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, g.ID, i, p.Prompt, p.Name, p.ResponseID, toMillis(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("store prompt %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save goal: %w", err)
	}
	return nil
}

// GetGoal returns the goal with id, or goals.ErrGoalNotFound.
func (s *Store) GetGoal(ctx context.Context, id string) (*goals.Goal, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, prompt, prompt_id, prompt_created_at, sort_order, created_at
		FROM goals WHERE id = ?
	`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", goals.ErrGoalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}

	if err := s.loadChildren(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// FindGoal resolves ref as an id, a unique id prefix, or an exact name.
func (s *Store) FindGoal(ctx context.Context, ref string) (*goals.Goal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", goals.ErrGoalNotFound)
	}

	all, err := s.ListGoals(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*goals.Goal
	for _, g := range all {
		if g.ID == ref {
			return g, nil
		}
		if strings.HasPrefix(g.ID, ref) || g.Name == ref {
			matches = append(matches, g)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", goals.ErrGoalNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("goal reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// ListGoals returns all goals in display order.
func (s *Store) ListGoals(ctx context.Context) ([]*goals.Goal, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, prompt, prompt_id, prompt_created_at, sort_order, created_at
		FROM goals ORDER BY sort_order, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	var out []*goals.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list goals: %w", err)
	}
	_ = rows.Close()

	for _, g := range out {
		if err := s.loadChildren(ctx, g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteGoal removes a goal and everything attached to it.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete goal: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", goals.ErrGoalNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_prompts WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("delete prompts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete goal: %w", err)
	}
	return nil
}

// DeleteAllGoals removes every goal and returns how many there were.
func (s *Store) DeleteAllGoals(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset goals: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM goals`)
	if err != nil {
		return 0, fmt.Errorf("reset goals: %w", err)
	}
	count, _ := res.RowsAffected()
	for _, stmt := range []string{`DELETE FROM tasks`, `DELETE FROM goal_prompts`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("reset goals: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset goals: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*goals.Goal, error) {
	var (
		g               goals.Goal
		promptCreatedAt int64
		createdAt       int64
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Prompt, &g.PromptID, &promptCreatedAt, &g.Order, &createdAt); err != nil {
		return nil, err
	}
	g.PromptCreatedAt = fromMillis(promptCreatedAt)
	g.CreatedAt = fromMillis(createdAt)
	g.Tasks = []goals.Task{}
	return &g, nil
}

func (s *Store) loadChildren(ctx context.Context, g *goals.Goal) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT description, done, response_id, task_order, created_at
		FROM tasks WHERE goal_id = ? ORDER BY position
	`, g.ID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			t         goals.Task
			done      int
			createdAt int64
		)
		if err := rows.Scan(&t.Description, &done, &t.ResponseID, &t.Order, &createdAt); err != nil {
			return fmt.Errorf("scan task: %w", err)
		}
		t.Done = done != 0
		t.CreatedAt = fromMillis(createdAt)
		g.Tasks = append(g.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	promptRows, err := s.DB.QueryContext(ctx, `
		SELECT prompt, name, response_id, created_at
		FROM goal_prompts WHERE goal_id = ? ORDER BY position
	`, g.ID)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	defer promptRows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for promptRows.Next() {
		var (
			p         goals.Prompt
			createdAt int64
		)
		if err := promptRows.Scan(&p.Prompt, &p.Name, &p.ResponseID, &createdAt); err != nil {
			return fmt.Errorf("scan prompt: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		g.PreviousPrompts = append(g.PreviousPrompts, p)
	}
	return promptRows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
