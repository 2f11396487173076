package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omnikey-app/omnikey/server"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the broker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(server.Version)
		},
	}
}
