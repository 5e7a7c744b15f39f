package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionsentry/internal/config"
	sentrylog "github.com/nao1215/onionsentry/internal/log"
	"github.com/nao1215/onionsentry/internal/sanitize"
)

// NewSanitizeCmd creates the sanitize command.
func NewSanitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize [path]",
		Short: "Strip identifying data from log files",
		Long: `Sanitize rewrites log files in place, replacing IP addresses, onion
hostnames, script paths and the User-Agent, Referer, Cookie and
Authorization headers with placeholders.

A file argument is rewritten directly. A directory is searched recursively
for *.log files. Without an argument ` + config.DefaultSanitizeDir + ` is used.

Examples:
  # Sanitize the RAM log directory
  onionsentry sanitize

  # Sanitize a single file
  onionsentry sanitize /var/log/nginx/access.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSanitizeCmd,
	}

	cmd.Flags().IntP("jobs", "j", sanitize.DefaultConcurrency,
		"Number of files rewritten in parallel")

	return cmd
}

// runSanitizeCmd executes the sanitize command.
func runSanitizeCmd(cmd *cobra.Command, args []string) error {
	target := config.DefaultSanitizeDir
	if len(args) == 1 {
		target = args[0]
	}

	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose") //nolint:errcheck // Absent outside the root command
	logger := sentrylog.NewRedactingLogger(cmd.ErrOrStderr(), verbose, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sanitize.New(sanitize.WithConcurrency(jobs), sanitize.WithLogger(logger))
	n, err := s.Path(ctx, target)
	if err != nil && n == 0 {
		return fmt.Errorf("sanitize failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sanitized %d file(s) under %s\n", n, target)
	if err != nil {
		return fmt.Errorf("some files could not be sanitized: %w", err)
	}
	return nil
}
