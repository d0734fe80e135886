package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Reminder is a user's scheduled notification.
type Reminder struct {
	ID      int64
	User    string
	Title   string
	Body    string
	DueAt   time.Time
	FiredAt time.Time // Zero until delivered
}

// Fired reports whether the reminder was delivered.
func (r Reminder) Fired() bool {
	return !r.FiredAt.IsZero()
}

// AddReminder stores a reminder for an existing account and returns its id.
func (s *SQLiteStore) AddReminder(ctx context.Context, r Reminder) (int64, error) {
	if r.Title == "" {
		return 0, fmt.Errorf("reminder title is required")
	}
	if r.DueAt.IsZero() {
		return 0, fmt.Errorf("reminder due time is required")
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reminders (username, title, body, due_at) VALUES (?, ?, ?, ?)
		`, r.User, r.Title, r.Body, r.DueAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to add reminder: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Reminders returns every reminder of a user ordered by due time.
func (s *SQLiteStore) Reminders(ctx context.Context, user string) ([]Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, username, title, body, due_at, fired_at
		FROM reminders
		WHERE username = ?
		ORDER BY due_at ASC, id ASC
	`, user)
}

// DueReminders returns the user's undelivered reminders due at or before now.
func (s *SQLiteStore) DueReminders(ctx context.Context, user string, now time.Time) ([]Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, username, title, body, due_at, fired_at
		FROM reminders
		WHERE username = ? AND fired_at IS NULL AND due_at <= ?
		ORDER BY due_at ASC, id ASC
	`, user, now.UnixNano())
}

// MarkReminderFired records delivery of a reminder.
func (s *SQLiteStore) MarkReminderFired(ctx context.Context, id int64, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE reminders SET fired_at = ? WHERE id = ?`, at.UnixNano(), id)
		if err != nil {
			return fmt.Errorf("failed to mark reminder %d fired: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *SQLiteStore) queryReminders(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		var due int64
		var fired sql.NullInt64
		if err := rows.Scan(&r.ID, &r.User, &r.Title, &r.Body, &due, &fired); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		r.DueAt = time.Unix(0, due)
		r.FiredAt = fromNanos(fired)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return out, nil
}
