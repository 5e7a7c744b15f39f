// Package main provides the entry point for the onionsentry daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for onionsentry.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onionsentry",
		Short: "Defensive sentry for Tor onion services",
		Long: `onionsentry guards the host of a Tor onion service.

It watches the Tor control port for bursts of circuit builds typical of
guard discovery and deanonymization attacks and answers them with NEWNYM,
monitors the served web root for unexpected file changes, periodically
audits the Tor and hidden service configuration, and keeps its own logs
free of IP addresses and onion hostnames.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .onionsentry.yaml or XDG config dir)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSanitizeCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
