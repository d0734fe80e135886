package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/lifecycle/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the built-in defaults to .lifecycle/config.yaml, or to
~/.lifecycle/config.yaml with --global. An existing file is kept unless
--force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		path := config.ProjectConfigPath()
		if global {
			path = config.GlobalConfigPath()
		}
		if path == "" {
			return fmt.Errorf("cannot determine config path")
		}

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "global:  %s\nproject: %s\n", config.GlobalConfigPath(), config.ProjectConfigPath())
	},
}

func init() {
	configInitCmd.Flags().Bool("global", false, "Write the global config instead of the project config")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
