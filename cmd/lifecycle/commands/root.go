// Package commands implements the lifecycle CLI commands using cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/lifecycle/internal/config"
	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/modules"
	"github.com/aristath/lifecycle/internal/orchestrator"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Staged startup and session orchestrator for the productivity suite",
	Long: `Lifecycle boots the productivity suite host in two phases.

The startup phase opens the database, the notes vault, notifications and the
scheduler. The session phase brings a signed-in user's account, session log
and reminders up, and tears them down again on sign-out.

Configuration is read from ~/.lifecycle/config.yaml, then .lifecycle/config.yaml,
then LIFECYCLE_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Project config file (default .lifecycle/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// loadConfig reads the configuration named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	projectPath, _ := cmd.Flags().GetString("config")
	if projectPath == "" {
		projectPath = config.ProjectConfigPath()
	}

	cfg, err := config.Load(config.GlobalConfigPath(), projectPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// host bundles what every command that touches the lifecycle needs.
type host struct {
	cfg     *config.Config
	bus     *events.EventBus
	orch    *orchestrator.Orchestrator
	modules *modules.Host
}

// newHost wires the orchestrator and registers every module.
func newHost(cfg *config.Config, log *logging.Logger) (*host, error) {
	bus := events.NewEventBus()

	retry := orchestrator.DefaultRetryConfig()
	if cfg.Retry.InitialInterval > 0 {
		retry.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		retry.MaxInterval = cfg.Retry.MaxInterval
	}

	o := orchestrator.New(
		orchestrator.WithLogger(log.WithComponent("orchestrator")),
		orchestrator.WithEventBus(bus),
		orchestrator.WithDefaultTimeout(cfg.Tasks.DefaultTimeout),
		orchestrator.WithRetryConfig(retry),
		orchestrator.WithBreaker(orchestrator.BreakerConfig{
			Enabled:             cfg.Breaker.Enabled,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
		}),
	)

	mh := modules.NewHost(cfg, bus, log.WithComponent("modules"))
	if err := modules.Register(o, mh); err != nil {
		bus.Close()
		return nil, err
	}
	return &host{cfg: cfg, bus: bus, orch: o, modules: mh}, nil
}
