// Package cli implements the nikola command tree.
package cli

import "github.com/spf13/cobra"

// Execute runs the root command.
func Execute() error {
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nikola",
		Short:        "Nikola demo backend: rule-based chat, EVM and BoQ calculators, agent skills",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd())
	return cmd
}
