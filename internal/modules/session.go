package modules

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aristath/lifecycle/internal/scheduler"
)

// ErrInvalidUser rejects a user name the account store would not accept.
var ErrInvalidUser = errors.New("invalid user name")

var userPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// authModule validates the session's user.
type authModule struct {
	host *Host
}

func (m *authModule) Initialize(_ context.Context, sess scheduler.Session) error {
	if !sess.HasUser() {
		return scheduler.ErrNoCurrentUser
	}
	if !userPattern.MatchString(sess.User) {
		return fmt.Errorf("%w: %q", ErrInvalidUser, sess.User)
	}
	return nil
}

// accountsModule loads (or creates) the signed-in user's account.
type accountsModule struct {
	host *Host
}

func (m *accountsModule) Initialize(ctx context.Context, sess scheduler.Session) error {
	store := m.host.Store()
	if store == nil {
		return fmt.Errorf("database not open")
	}
	acct, err := store.UpsertAccount(ctx, sess.User)
	if err != nil {
		return err
	}
	m.host.set(func(h *Host) { h.account = acct })
	if acct.Logins == 1 {
		m.host.log.Infof("created account for %s", acct.User)
	}
	return nil
}

func (m *accountsModule) Cleanup(context.Context) error {
	m.host.set(func(h *Host) { h.account = nil })
	return nil
}

// sessionLogModule records when a user's session starts and ends.
type sessionLogModule struct {
	host *Host
	id   int64
}

func (m *sessionLogModule) Initialize(ctx context.Context, sess scheduler.Session) error {
	store := m.host.Store()
	if store == nil {
		return fmt.Errorf("database not open")
	}
	id, err := store.OpenSession(ctx, sess.User)
	if err != nil {
		return err
	}
	m.id = id
	return nil
}

func (m *sessionLogModule) Cleanup(ctx context.Context) error {
	if m.id == 0 {
		return nil
	}
	store := m.host.Store()
	if store == nil {
		return fmt.Errorf("database closed before session %d was ended", m.id)
	}
	err := store.CloseSession(ctx, m.id)
	m.id = 0
	return err
}
