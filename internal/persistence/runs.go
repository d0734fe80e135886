package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PhaseRun is one phase activation as recorded for diagnostics.
type PhaseRun struct {
	ActivationID string
	Phase        string
	User         string
	Status       string
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time // Zero while running
}

// TaskRun is the final record of one task within an activation.
type TaskRun struct {
	ActivationID string
	Task         string
	Status       string
	Attempts     int
	Duration     time.Duration
	Error        string
	FinishedAt   time.Time
}

// SavePhaseRun inserts or updates a phase run. Empty fields of an update keep
// the stored values, so a run can be saved when it starts and again when it ends.
func (s *SQLiteStore) SavePhaseRun(ctx context.Context, run PhaseRun) error {
	if run.ActivationID == "" {
		return fmt.Errorf("phase run has no activation id")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO phase_runs (activation_id, phase, username, status, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(activation_id) DO UPDATE SET
				phase = COALESCE(NULLIF(excluded.phase, ''), phase_runs.phase),
				username = COALESCE(NULLIF(excluded.username, ''), phase_runs.username),
				status = COALESCE(NULLIF(excluded.status, ''), phase_runs.status),
				error = COALESCE(NULLIF(excluded.error, ''), phase_runs.error),
				started_at = COALESCE(excluded.started_at, phase_runs.started_at),
				finished_at = COALESCE(excluded.finished_at, phase_runs.finished_at)
		`, run.ActivationID, run.Phase, run.User, run.Status, run.Error, toNanos(run.StartedAt), toNanos(run.FinishedAt))
		if err != nil {
			return fmt.Errorf("failed to save phase run: %w", err)
		}
		return nil
	})
}

// RecordTaskRun appends a task run. Runs are append-only.
func (s *SQLiteStore) RecordTaskRun(ctx context.Context, run TaskRun) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_runs (activation_id, task, status, attempts, duration_ns, error, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ActivationID, run.Task, run.Status, run.Attempts, int64(run.Duration), run.Error, toNanos(run.FinishedAt))
		if err != nil {
			return fmt.Errorf("failed to record task run: %w", err)
		}
		return nil
	})
}

// PhaseRuns returns the most recent phase runs, newest first. limit <= 0 returns all.
func (s *SQLiteStore) PhaseRuns(ctx context.Context, limit int) ([]PhaseRun, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT activation_id, phase, username, status, error, started_at, finished_at
		FROM phase_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase runs: %w", err)
	}
	defer rows.Close()

	var runs []PhaseRun
	for rows.Next() {
		var r PhaseRun
		var started, finished sql.NullInt64
		if err := rows.Scan(&r.ActivationID, &r.Phase, &r.User, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan phase run: %w", err)
		}
		r.StartedAt = fromNanos(started)
		r.FinishedAt = fromNanos(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phase runs: %w", err)
	}
	return runs, nil
}

// TaskRuns returns the task runs of one activation in recording order.
func (s *SQLiteStore) TaskRuns(ctx context.Context, activationID string) ([]TaskRun, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT activation_id, task, status, attempts, duration_ns, error, finished_at
		FROM task_runs
		WHERE activation_id = ?
		ORDER BY id ASC
	`, activationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var r TaskRun
		var durationNs int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ActivationID, &r.Task, &r.Status, &r.Attempts, &durationNs, &r.Error, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		r.Duration = time.Duration(durationNs)
		r.FinishedAt = fromNanos(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}
	return runs, nil
}
