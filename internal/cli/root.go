// Package cli wires the omnikey command tree.
package cli

import "github.com/spf13/cobra"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:           "omnikey",
		Short:         "Local credential broker for LLM provider keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd.Execute()
}
