package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// filesystemModule creates the notes directory and watches it, posting a
// vault-changed notification for every note written, created or removed.
type filesystemModule struct {
	host    *Host
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func (m *filesystemModule) Initialize(_ context.Context, _ scheduler.Session) error {
	dir := m.host.NotesDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating notes directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	m.watcher = watcher
	m.done = make(chan struct{})
	go m.watch(watcher, m.done)
	return nil
}

func (m *filesystemModule) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ignoredNote(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			m.host.bus.Publish(events.TopicNotification, events.NotificationEvent{
				Kind:      events.EventTypeVaultChanged,
				Source:    TaskFilesystem,
				Title:     filepath.Base(ev.Name),
				Body:      ev.Op.String(),
				Timestamp: time.Now(),
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.host.log.Err(err).Msg("notes watcher error")
		}
	}
}

// ignoredNote filters git metadata and editor swap files.
func ignoredNote(path string) bool {
	base := filepath.Base(path)
	return base == ".git" || strings.HasPrefix(base, ".#") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, "~")
}

func (m *filesystemModule) Cleanup(ctx context.Context) error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.watcher = nil
	return err
}
