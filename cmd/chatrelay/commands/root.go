// Package commands implements the chatrelay CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "chatrelay - conversational webhook relay for LINE",
		Long: `chatrelay receives LINE webhook events and answers them with
prefix commands (weather, translate, flight, image, reminders) or an
LLM-backed conversation with per-user session memory.

Examples:
  chatrelay serve
  chatrelay serve --config ./config.yaml
  chatrelay config check`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
