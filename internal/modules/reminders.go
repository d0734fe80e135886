package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// remindersModule sweeps the signed-in user's due reminders on the cron
// engine and delivers them through the notifier.
type remindersModule struct {
	host *Host

	mu    sync.Mutex
	user  string
	entry cron.EntryID
}

func (m *remindersModule) Initialize(ctx context.Context, sess scheduler.Session) error {
	c := m.host.Cron()
	if c == nil {
		return fmt.Errorf("cron engine not running")
	}
	if m.host.Store() == nil {
		return fmt.Errorf("database not open")
	}

	// Deliver anything that came due while the user was away.
	if _, err := m.sweep(ctx, sess.User, time.Now()); err != nil {
		return err
	}

	user := sess.User
	entry, err := c.AddFunc(m.host.cfg.Reminders.Sweep, func() {
		if _, err := m.sweep(context.Background(), user, time.Now()); err != nil {
			m.host.log.Err(err).Str("user", user).Msg("reminder sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling reminder sweep: %w", err)
	}

	m.mu.Lock()
	m.user = user
	m.entry = entry
	m.mu.Unlock()
	return nil
}

// sweep delivers and marks the user's due reminders. It returns how many fired.
func (m *remindersModule) sweep(ctx context.Context, user string, now time.Time) (int, error) {
	store := m.host.Store()
	if store == nil {
		return 0, fmt.Errorf("database not open")
	}
	due, err := store.DueReminders(ctx, user, now)
	if err != nil {
		return 0, err
	}

	notifier := m.host.Notifier()
	fired := 0
	for _, r := range due {
		if notifier != nil {
			notifier.Notify(events.EventTypeReminderFired, TaskReminders, r.Title, r.Body)
		}
		if err := store.MarkReminderFired(ctx, r.ID, now); err != nil {
			return fired, err
		}
		fired++
	}
	return fired, nil
}

// Cleanup removes the user's sweep from the engine.
func (m *remindersModule) Cleanup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entry == 0 {
		return nil
	}
	if c := m.host.Cron(); c != nil {
		c.Remove(m.entry)
	}
	m.host.log.Debugf("stopped reminder sweep for %s", m.user)
	m.entry = 0
	m.user = ""
	return nil
}
