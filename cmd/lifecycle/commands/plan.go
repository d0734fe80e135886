package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/orchestrator"
	"github.com/aristath/lifecycle/internal/scheduler"
)

var (
	planHeader = lipgloss.NewStyle().Bold(true)
	planDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resolved execution order",
	Long: `Resolve and print the order in which each phase's tasks would run,
with their dependencies and criticality. Nothing is executed.

Each phase is planned as if every earlier phase had completed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		phaseName, _ := cmd.Flags().GetString("phase")

		phases := scheduler.Phases()
		if phaseName != "all" {
			p, err := scheduler.ParsePhase(phaseName)
			if err != nil {
				return err
			}
			phases = []scheduler.Phase{p}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		h, err := newHost(cfg, logging.Nop())
		if err != nil {
			return err
		}
		defer h.bus.Close()

		return printPlan(cmd.OutOrStdout(), h.orch, phases)
	},
}

func init() {
	planCmd.Flags().StringP("phase", "p", "all", "Phase to plan: startup, session or all")
	rootCmd.AddCommand(planCmd)
}

func printPlan(w io.Writer, o *orchestrator.Orchestrator, phases []scheduler.Phase) error {
	for _, phase := range phases {
		order, err := o.Plan(phase)
		if err != nil {
			return fmt.Errorf("planning %s: %w", phase, err)
		}

		fmt.Fprintln(w, planHeader.Render(strings.ToUpper(phase.String())))
		for i, name := range order {
			task, _ := o.Task(name)
			line := fmt.Sprintf("%2d. %s", i+1, name)
			var notes []string
			if len(task.DependsOn) > 0 {
				notes = append(notes, "after "+strings.Join(task.DependsOn, ", "))
			}
			if task.NonCritical {
				notes = append(notes, "non-critical")
			}
			if task.Timeout > 0 {
				notes = append(notes, "timeout "+task.Timeout.String())
			}
			if len(notes) > 0 {
				line += "  " + planDim.Render("("+strings.Join(notes, "; ")+")")
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	return nil
}
