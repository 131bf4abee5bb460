package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the lobsim CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lobsim version %s\n", version)
		fmt.Fprintln(cmd.OutOrStdout(), "Historical limit order book replay and matching simulator")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
