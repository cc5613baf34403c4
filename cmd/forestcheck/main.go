// Package main provides the entry point for the forestcheck CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forestcheck/cmd/forestcheck/commands"
	"github.com/Sumatoshi-tech/forestcheck/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	globals := &commands.Globals{}

	rootCmd := &cobra.Command{
		Use:   "forestcheck",
		Short: "forestcheck - output reachability verification for tree ensembles",
		Long: `forestcheck decides whether an additive tree ensemble can produce an
output in a given range, splitting the input space across parallel workers.

Commands:
  verify    Search the input space for outputs in a range
  predict   Evaluate the ensemble on feature vectors
  inspect   Summarize a model`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	globals.Register(rootCmd)

	rootCmd.AddCommand(commands.NewVerifyCommand(globals))
	rootCmd.AddCommand(commands.NewPredictCommand(globals))
	rootCmd.AddCommand(commands.NewInspectCommand(globals))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "forestcheck %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
