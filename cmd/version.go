package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints tunnelcore version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.TunnelcoreVersion())
	},
}
