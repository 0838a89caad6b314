package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "themis",
	Short: "Themis - policy decision service for workforce AI governance",
	Long: `Themis is a policy decision service that governs workforce access to
external AI tools. For every request it resolves who is asking and what
they are asking for, consults admin overrides and the decision cache,
and delegates policy evaluation to an external rule engine.

It provides:
  - Per-request ALLOW/DENY/REVIEW decisions
  - Admin overrides that take precedence over policy
  - A generation-tagged decision cache invalidated on policy changes
  - Persisted policy activation with full history
  - An append-only audit trail for every decision`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
