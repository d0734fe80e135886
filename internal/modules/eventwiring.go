package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/persistence"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// eventWiringModule records phase and task outcomes from the bus into the
// database so past boots can be inspected.
type eventWiringModule struct {
	host *Host
	sub  <-chan events.Event
	done chan struct{}
}

func (m *eventWiringModule) Initialize(_ context.Context, _ scheduler.Session) error {
	store := m.host.Store()
	if store == nil {
		return fmt.Errorf("database not open")
	}

	m.sub = m.host.bus.SubscribeAll(0)
	m.done = make(chan struct{})
	go m.record(store, m.sub, m.done)
	return nil
}

func (m *eventWiringModule) record(store persistence.Store, sub <-chan events.Event, done chan struct{}) {
	defer close(done)
	log := m.host.log.WithComponent("recorder")

	for ev := range sub {
		if err := recordEvent(context.Background(), store, ev); err != nil {
			log.Err(err).Str("event", ev.EventType()).Msg("failed to record event")
		}
	}
}

// recordEvent persists the events that make up a phase run's history.
func recordEvent(ctx context.Context, store persistence.Store, ev events.Event) error {
	switch e := ev.(type) {
	case events.PhaseStartedEvent:
		return store.SavePhaseRun(ctx, persistence.PhaseRun{
			ActivationID: e.ActivationID,
			Phase:        e.Phase,
			User:         e.User,
			Status:       scheduler.PhaseRunning.String(),
			StartedAt:    e.Timestamp,
		})
	case events.PhaseFinishedEvent:
		return store.SavePhaseRun(ctx, persistence.PhaseRun{
			ActivationID: e.ActivationID,
			Phase:        e.Phase,
			Status:       e.Status,
			Error:        errString(e.Err),
			StartedAt:    e.Timestamp.Add(-e.Duration),
			FinishedAt:   e.Timestamp,
		})
	case events.TaskCompletedEvent:
		return store.RecordTaskRun(ctx, persistence.TaskRun{
			ActivationID: e.ActivationID,
			Task:         e.Name,
			Status:       scheduler.TaskCompleted.String(),
			Attempts:     e.Attempts,
			Duration:     e.Duration,
			FinishedAt:   e.Timestamp,
		})
	case events.TaskFailedEvent:
		return store.RecordTaskRun(ctx, persistence.TaskRun{
			ActivationID: e.ActivationID,
			Task:         e.Name,
			Status:       scheduler.TaskFailed.String(),
			Attempts:     e.Attempts,
			Duration:     e.Duration,
			Error:        errString(e.Err),
			FinishedAt:   e.Timestamp,
		})
	case events.TaskSkippedEvent:
		return store.RecordTaskRun(ctx, persistence.TaskRun{
			ActivationID: e.ActivationID,
			Task:         e.Name,
			Status:       scheduler.TaskSkipped.String(),
			Error:        e.Reason,
			FinishedAt:   e.Timestamp,
		})
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Cleanup stops recording and drains what was already delivered.
func (m *eventWiringModule) Cleanup(ctx context.Context) error {
	if m.sub == nil {
		return nil
	}
	m.host.bus.Unsubscribe(m.sub)
	m.sub = nil

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("recorder did not drain")
	}
}
