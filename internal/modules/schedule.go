package modules

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	zl := l.log.Zerolog()
	zl.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	zl := l.log.Zerolog()
	zl.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// scheduleModule owns the cron engine session modules schedule jobs on.
type scheduleModule struct {
	host *Host
	cron *cron.Cron
}

func (m *scheduleModule) Initialize(_ context.Context, _ scheduler.Session) error {
	logger := cronLogger{log: m.host.log.WithComponent("cron")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()

	m.cron = c
	m.host.set(func(h *Host) { h.cron = c })
	return nil
}

// Cleanup stops the engine and waits for running jobs.
func (m *scheduleModule) Cleanup(ctx context.Context) error {
	m.host.set(func(h *Host) { h.cron = nil })
	if m.cron == nil {
		return nil
	}
	stopped := m.cron.Stop()
	m.cron = nil
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
