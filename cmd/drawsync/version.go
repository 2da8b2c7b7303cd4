package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rickgao/drawsync/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of " + appName,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version.String())
		fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
	},
}
