package modules

import (
	"context"
	"fmt"

	"github.com/aristath/lifecycle/internal/scheduler"
	"github.com/aristath/lifecycle/internal/vault"
)

// gitModule keeps the notes directory under version control. On teardown it
// snapshots whatever changed since the last commit.
type gitModule struct {
	host  *Host
	vault *vault.Vault
}

func (m *gitModule) Initialize(ctx context.Context, _ scheduler.Session) error {
	v := vault.New(vault.Config{Path: m.host.NotesDir()})
	info, err := v.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening notes vault: %w", err)
	}

	m.vault = v
	m.host.set(func(h *Host) { h.vault = v })
	if info.Fresh {
		m.host.log.Infof("initialized notes vault at %s", info.Path)
	} else {
		m.host.log.Debugf("notes vault at %s on %s (%s)", info.Path, info.Branch, shortHash(info.Head))
	}
	return nil
}

func (m *gitModule) Cleanup(ctx context.Context) error {
	if m.vault == nil {
		return nil
	}
	res, err := m.vault.Commit(ctx, "autosave on shutdown")
	m.host.set(func(h *Host) { h.vault = nil })
	m.vault = nil
	if err != nil {
		return fmt.Errorf("snapshotting notes: %w", err)
	}
	if res.Committed {
		m.host.log.Infof("snapshotted %d note(s) at %s", res.Files, shortHash(res.Head))
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	if h == "" {
		return "no commits"
	}
	return h
}
