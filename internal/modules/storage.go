package modules

import (
	"context"
	"fmt"

	"github.com/aristath/lifecycle/internal/persistence"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// dbModule opens the SQLite store every other data-owning module uses.
type dbModule struct {
	host  *Host
	store *persistence.SQLiteStore
}

func (m *dbModule) Initialize(ctx context.Context, _ scheduler.Session) error {
	store, err := persistence.NewSQLiteStore(ctx, m.host.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return fmt.Errorf("database unreachable: %w", err)
	}

	m.store = store
	m.host.set(func(h *Host) { h.store = store })
	m.host.log.Infof("database opened at %s", m.host.DBPath())
	return nil
}

func (m *dbModule) Cleanup(context.Context) error {
	m.host.set(func(h *Host) { h.store = nil })
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}
