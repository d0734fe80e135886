package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/scheduler"
	"github.com/aristath/lifecycle/internal/status"
	"github.com/aristath/lifecycle/internal/tui"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the host and keep it running",
	Long: `Boot the host: run the startup phase, optionally bring up a user's
session, then serve the status endpoints until interrupted.

On SIGINT/SIGTERM every activated phase is torn down, latest first.

Examples:
  lifecycle run                  # Startup phase only
  lifecycle run --user alice     # Startup, then alice's session
  lifecycle run --tui            # Watch the boot in the terminal monitor`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("user", "u", "", "Sign this user in after startup")
	runCmd.Flags().Bool("tui", false, "Show the boot monitor")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	withTUI, _ := cmd.Flags().GetBool("tui")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The monitor owns the terminal, so logs go to files.
	if withTUI && cfg.Logging.Path == "" {
		cfg.Logging.Path = filepath.Join(cfg.DataDir, "logs")
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log := logging.Component("run")
	defer logging.Get().Close()

	h, err := newHost(cfg, logging.Get())
	if err != nil {
		return err
	}
	defer h.bus.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var program *tea.Program
	if withTUI {
		program = tea.NewProgram(tui.New(h.bus), tea.WithAltScreen(), tea.WithContext(gctx))
	}

	if cfg.Status.Addr != "" {
		srv := status.NewServer(h.orch, logging.Component("status"))
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Status.Addr)
		})
	}

	g.Go(func() error {
		if _, err := h.orch.ExecutePhase(gctx, scheduler.PhaseStartup); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		if user != "" {
			if _, err := h.orch.StartSession(gctx, user); err != nil {
				return fmt.Errorf("session for %s: %w", user, err)
			}
		}
		log.Info("host ready")
		<-gctx.Done()
		return nil
	})

	if program != nil {
		g.Go(func() error {
			_, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("monitor: %w", err)
			}
			// Quitting the monitor stops the host.
			return errMonitorClosed
		})
	}

	err = g.Wait()
	if errors.Is(err, errMonitorClosed) {
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	failed := 0
	for _, res := range h.orch.Shutdown(shutdownCtx) {
		for task, cerr := range res.Errors {
			failed++
			log.Err(cerr).Str("task", task).Str("phase", res.Phase.String()).Msg("cleanup failed")
		}
	}
	if failed > 0 {
		log.Warnf("shutdown finished with %d cleanup failure(s)", failed)
	}
	return err
}

var errMonitorClosed = errors.New("monitor closed")
