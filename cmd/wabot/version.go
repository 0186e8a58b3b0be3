package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/wabot/core/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "wabot "+buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
