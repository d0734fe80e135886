package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS phase_runs (
		activation_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_phase_runs_started ON phase_runs(started_at);

	CREATE TABLE IF NOT EXISTS task_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		activation_id TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_activation ON task_runs(activation_id, id);

	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		logins INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_login_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		FOREIGN KEY (username) REFERENCES accounts(username) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		due_at INTEGER NOT NULL,
		fired_at INTEGER,
		FOREIGN KEY (username) REFERENCES accounts(username) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_user_due ON reminders(username, due_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
