package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// ErrSessionActive rejects a user change while the session phase is activated.
var ErrSessionActive = errors.New("session already active")

// SetCurrentUser sets the session user; an empty user clears it. Changing the
// user while the session phase is activated fails with ErrSessionActive: end
// the session first.
func (o *Orchestrator) SetCurrentUser(user string) error {
	o.mu.Lock()
	prev := o.user
	if prev == user {
		o.mu.Unlock()
		return nil
	}
	if st := o.phases[scheduler.PhaseSession]; st.status != scheduler.PhaseNotStarted {
		o.mu.Unlock()
		return fmt.Errorf("set user %q: %w (current user %q)", user, ErrSessionActive, prev)
	}
	o.user = user
	o.snap.setUser(user)
	o.mu.Unlock()

	o.userChanged(prev, user)
	return nil
}

// userChanged announces a user change already applied under o.mu.
func (o *Orchestrator) userChanged(prev, user string) {
	if o.bus != nil {
		o.bus.Publish(events.TopicSession, events.UserChangedEvent{
			Previous:  prev,
			User:      user,
			Timestamp: time.Now(),
		})
	}
	if user == "" {
		o.log.Infof("user %s signed out", prev)
	} else {
		o.log.Infof("current user set to %s", user)
	}
}

// CurrentUser returns the session user, or "" when none is set.
func (o *Orchestrator) CurrentUser() string {
	return o.snap.load().User
}

// StartSession sets the current user and activates the session phase.
func (o *Orchestrator) StartSession(ctx context.Context, user string) (*scheduler.PhaseResult, error) {
	if user == "" {
		return nil, fmt.Errorf("start session: %w", scheduler.ErrNoCurrentUser)
	}
	if err := o.SetCurrentUser(user); err != nil {
		return nil, err
	}
	return o.ExecutePhase(ctx, scheduler.PhaseSession)
}

// EndSession tears the session phase down and clears the current user.
func (o *Orchestrator) EndSession(ctx context.Context) *scheduler.CleanupResult {
	return o.CleanupPhase(ctx, scheduler.PhaseSession)
}
