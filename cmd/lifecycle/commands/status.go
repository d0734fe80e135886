package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aristath/lifecycle/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running host's phase and task status",
	Long: `Query the status endpoint of a running host and print the current
user, each phase's state and every task's state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr = cfg.Status.Addr
		}
		if addr == "" {
			return fmt.Errorf("status server disabled: set status.addr or pass --addr")
		}

		report, err := status.NewClient(addr).Status(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("addr", "", "Status server address (default from config)")
	rootCmd.AddCommand(statusCmd)
}

func printReport(w io.Writer, r *status.Report) {
	user := r.User
	if user == "" {
		user = "(none)"
	}
	ready := "no"
	if r.Ready {
		ready = "yes"
	}
	fmt.Fprintf(w, "User:  %s\n", user)
	fmt.Fprintf(w, "Ready: %s\n\n", ready)

	fmt.Fprintln(w, "Phases:")
	for _, name := range []string{"startup", "session"} {
		fmt.Fprintf(w, "  %-10s %s\n", name, r.Phases[name])
	}

	names := make([]string, 0, len(r.Tasks))
	for name := range r.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nTasks:")
	for _, name := range names {
		line := fmt.Sprintf("  %-14s %s", name, r.Tasks[name])
		if state, ok := r.Breakers[name]; ok && state != "closed" {
			line += "  (breaker " + state + ")"
		}
		fmt.Fprintln(w, line)
	}
}
