package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionsentry/internal/config"
	"github.com/nao1215/onionsentry/internal/journal"
	"github.com/nao1215/onionsentry/internal/report"
)

// sinceLayouts are the absolute forms accepted by --since, in local time.
var sinceLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the event journal",
		Long: `Report prints what the daemon recorded in its journal: defense triggers
per outcome, file changes per severity, and the latest defense events, file
changes and privacy check results.

Examples:
  # Everything in the journal
  onionsentry report

  # Since a date, as Markdown
  onionsentry report --since 2026-01-01 --markdown

  # The last 24 hours as JSON
  onionsentry report --since 24h --json -o sentry.json`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	cmd.Flags().StringP("since", "s", "",
		"Only include events at or after DATE (YYYY-MM-DD, RFC 3339 or a duration such as 24h)")
	cmd.Flags().IntP("limit", "n", journal.DefaultRecentLimit,
		"Number of recent events listed per section")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String("journal-dir", config.XDGDataDir(),
		"Directory of the event journal")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	sinceFlag, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}
	since, err := parseSince(sinceFlag, time.Now())
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	j, err := journal.Open(cfg.JournalPath(), journal.Options{})
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("%w (has \"onionsentry run\" been started with this journal directory?)", err)
		}
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close() //nolint:errcheck // Read-only use

	data, err := report.Collect(context.Background(), j, since, limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := createReportFile(outputPath)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // Write errors are reported by the writer
		out = f
	}

	w, err := selectWriter(cmd, out)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// parseSince turns the --since value into a start time. An empty value
// selects the whole journal.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since duration %q: must not be negative", value)
		}
		return now.Add(-d), nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q (use YYYY-MM-DD, RFC 3339 or a duration)", value)
}

// createReportFile creates the output file with owner-only permissions.
// Reports name changed files, which may be sensitive.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// selectWriter picks the writer for the requested output format.
func selectWriter(cmd *cobra.Command, out io.Writer) (report.Writer, error) {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	switch {
	case asJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint()), nil
	case asMarkdown:
		return report.NewMarkdownWriter(out), nil
	default:
		return report.NewSimpleWriter(out), nil
	}
}
