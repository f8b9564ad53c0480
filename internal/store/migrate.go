package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		prompt_id TEXT NOT NULL DEFAULT '',
		prompt_created_at INTEGER NOT NULL,
		sort_order INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_goals_order ON goals(sort_order, created_at);`,
	`CREATE TABLE IF NOT EXISTS tasks (
		goal_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		description TEXT NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		response_id TEXT NOT NULL DEFAULT '',
		task_order INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (goal_id, position)
	);`,
	`CREATE TABLE IF NOT EXISTS goal_prompts (
		goal_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		name TEXT NOT NULL,
		response_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (goal_id, position)
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
