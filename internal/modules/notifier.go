package modules

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/scheduler"
)

const recentNotifications = 50

// Notifier posts user-facing notifications on the event bus and keeps the
// most recent ones for display.
type Notifier struct {
	bus  *events.EventBus
	log  *logging.Logger
	sub  <-chan events.Event
	done chan struct{}

	mu     sync.Mutex
	recent []events.NotificationEvent
}

func newNotifier(bus *events.EventBus, log *logging.Logger) *Notifier {
	n := &Notifier{
		bus:  bus,
		log:  log,
		sub:  bus.Subscribe(events.TopicNotification, 0),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify publishes a notification.
func (n *Notifier) Notify(kind, source, title, body string) {
	n.bus.Publish(events.TopicNotification, events.NotificationEvent{
		Kind:      kind,
		Source:    source,
		Title:     title,
		Body:      body,
		Timestamp: time.Now(),
	})
}

// Recent returns the latest notifications, oldest first.
func (n *Notifier) Recent() []events.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]events.NotificationEvent(nil), n.recent...)
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.sub {
		ne, ok := ev.(events.NotificationEvent)
		if !ok {
			continue
		}
		n.mu.Lock()
		n.recent = append(n.recent, ne)
		if len(n.recent) > recentNotifications {
			n.recent = n.recent[len(n.recent)-recentNotifications:]
		}
		n.mu.Unlock()

		n.log.InfoCtx(ne.Title, map[string]any{
			"kind":   ne.EventType(),
			"source": ne.Source,
			"body":   ne.Body,
		})
	}
}

// close stops the delivery loop.
func (n *Notifier) close(ctx context.Context) error {
	n.bus.Unsubscribe(n.sub)
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notificationModule starts the notifier.
type notificationModule struct {
	host     *Host
	notifier *Notifier
}

func (m *notificationModule) Initialize(_ context.Context, _ scheduler.Session) error {
	n := newNotifier(m.host.bus, m.host.log.WithComponent("notify"))
	m.notifier = n
	m.host.set(func(h *Host) { h.notifier = n })
	return nil
}

func (m *notificationModule) Cleanup(ctx context.Context) error {
	m.host.set(func(h *Host) { h.notifier = nil })
	if m.notifier == nil {
		return nil
	}
	err := m.notifier.close(ctx)
	m.notifier = nil
	return err
}
