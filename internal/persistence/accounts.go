package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Account is a user known to the host.
type Account struct {
	User        string
	Logins      int
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// UserSession is one signed-in period of a user.
type UserSession struct {
	ID        int64
	User      string
	StartedAt time.Time
	EndedAt   time.Time // Zero while open
}

// UpsertAccount creates the account on first login and bumps its login
// counter on every later one.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, user string) (*Account, error) {
	if user == "" {
		return nil, fmt.Errorf("account user is required")
	}

	now := time.Now()
	var acct *Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (username, logins, created_at, last_login_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(username) DO UPDATE SET
				logins = accounts.logins + 1,
				last_login_at = excluded.last_login_at
		`, user, now.UnixNano(), now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to upsert account: %w", err)
		}
		acct, err = scanAccount(tx.QueryRowContext(ctx, accountQuery, user))
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// GetAccount returns an account, or ErrNotFound.
func (s *SQLiteStore) GetAccount(ctx context.Context, user string) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	acct, err := scanAccount(s.db.QueryRowContext(ctx, accountQuery, user))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account %q: %w", user, ErrNotFound)
	}
	return acct, err
}

const accountQuery = `
	SELECT username, logins, created_at, last_login_at
	FROM accounts
	WHERE username = ?
`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var created int64
	var lastLogin sql.NullInt64
	err := row.Scan(&a.User, &a.Logins, &created, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	a.CreatedAt = time.Unix(0, created)
	a.LastLoginAt = fromNanos(lastLogin)
	return &a, nil
}

// OpenSession starts a session row for an existing account.
func (s *SQLiteStore) OpenSession(ctx context.Context, user string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_sessions (username, started_at) VALUES (?, ?)
		`, user, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to open session for %q: %w", user, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CloseSession ends a session. Closing an already closed session is a no-op;
// an unknown id returns ErrNotFound.
func (s *SQLiteStore) CloseSession(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var ended sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT ended_at FROM user_sessions WHERE id = ?`, id).Scan(&ended)
		if err == sql.ErrNoRows {
			return fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to query session: %w", err)
		}
		if ended.Valid {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE user_sessions SET ended_at = ? WHERE id = ?`, time.Now().UnixNano(), id); err != nil {
			return fmt.Errorf("failed to close session %d: %w", id, err)
		}
		return nil
	})
}

// OpenSessions lists sessions that have not ended, oldest first.
func (s *SQLiteStore) OpenSessions(ctx context.Context) ([]UserSession, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, started_at
		FROM user_sessions
		WHERE ended_at IS NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []UserSession
	for rows.Next() {
		var us UserSession
		var started int64
		if err := rows.Scan(&us.ID, &us.User, &started); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		us.StartedAt = time.Unix(0, started)
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}
