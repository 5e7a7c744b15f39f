package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionsentry/internal/journal"
	"github.com/nao1215/onionsentry/internal/model"
	"github.com/nao1215/onionsentry/internal/report"
)

// seedJournal creates a journal in dir with one defense event and one
// file change.
func seedJournal(t *testing.T, dir string) {
	t.Helper()

	opts := journal.DefaultOptions()
	opts.WebRoot = "/var/www/onion_site"
	j, err := journal.Open(filepath.Join(dir, journal.FileName), opts)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	now := time.Now()
	ev := model.DefenseEvent{
		Detection: model.Detection{Window: model.WindowMinute, Observed: 31, Threshold: 30, At: now},
		Outcome:   model.OutcomeTriggered,
	}
	if err := j.RecordDefense(ctx, ev); err != nil {
		t.Fatalf("RecordDefense() returned error: %v", err)
	}
	change := model.Change{Path: "/var/www/onion_site/shell.php", Kind: model.ChangeAdded, Severity: model.SeverityCritical}
	if err := j.RecordFileChange(ctx, now, change); err != nil {
		t.Fatalf("RecordFileChange() returned error: %v", err)
	}
}

func executeReport(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"report"}, args...))
	err := root.Execute()
	return out.String(), err
}

// TestRunReportCmd tests the report formats against a seeded journal.
func TestRunReportCmd(t *testing.T) {
	t.Parallel()

	// Subtests share one SQLite file and run sequentially.
	dir := t.TempDir()
	seedJournal(t, dir)

	t.Run("text", func(t *testing.T) {
		out, err := executeReport(t, "--journal-dir", dir)
		if err != nil {
			t.Fatalf("report returned error: %v", err)
		}
		for _, want := range []string{"SUMMARY", "shell.php", "triggered"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := executeReport(t, "--journal-dir", dir, "--json")
		if err != nil {
			t.Fatalf("report returned error: %v", err)
		}
		var decoded report.JSONReport
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if decoded.Version != report.JSONFormatVersion {
			t.Errorf("version = %q", decoded.Version)
		}
		if decoded.Data == nil || len(decoded.Defenses) != 1 || len(decoded.Changes) != 1 {
			t.Fatalf("unexpected data: %+v", decoded.Data)
		}
		if decoded.Changes[0].Path != "shell.php" {
			t.Errorf("path = %q, expected path relative to the web root", decoded.Changes[0].Path)
		}
	})

	t.Run("markdown to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "report.md")
		if _, err := executeReport(t, "--journal-dir", dir, "--markdown", "-o", path); err != nil {
			t.Fatalf("report returned error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "|") {
			t.Errorf("expected a Markdown table, got:\n%s", data)
		}
	})

	t.Run("since in the future is empty", func(t *testing.T) {
		out, err := executeReport(t, "--journal-dir", dir, "--json", "--since", time.Now().Add(time.Hour).Format(time.RFC3339))
		if err != nil {
			t.Fatalf("report returned error: %v", err)
		}
		var decoded report.JSONReport
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(decoded.Defenses) != 0 || decoded.Summary.TotalChanges() != 0 {
			t.Errorf("expected nothing after --since, got %+v", decoded.Data)
		}
	})

	t.Run("json and markdown are exclusive", func(t *testing.T) {
		if _, err := executeReport(t, "--journal-dir", dir, "--json", "--markdown"); err == nil {
			t.Error("expected error for --json with --markdown")
		}
	})
}

// TestRunReportCmd_MissingJournal tests that report does not create a journal.
func TestRunReportCmd_MissingJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := executeReport(t, "--journal-dir", dir)
	if !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, journal.FileName)); !os.IsNotExist(statErr) {
		t.Error("report must not create the journal")
	}
}

// TestParseSince tests the accepted --since forms.
func TestParseSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected time.Time
		wantErr  bool
	}{
		{name: "empty is the whole journal", value: "", expected: time.Time{}},
		{name: "duration", value: "24h", expected: now.Add(-24 * time.Hour)},
		{name: "date", value: "2026-01-02", expected: time.Date(2026, 1, 2, 0, 0, 0, 0, time.Local)},
		{name: "date and minute", value: "2026-01-02 03:04", expected: time.Date(2026, 1, 2, 3, 4, 0, 0, time.Local)},
		{name: "rfc3339", value: "2026-01-02T03:04:05Z", expected: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{name: "negative duration", value: "-1h", wantErr: true},
		{name: "garbage", value: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseSince(tt.value, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSince(%q) expected error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSince(%q) returned error: %v", tt.value, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("parseSince(%q) = %v, expected %v", tt.value, got, tt.expected)
			}
		})
	}
}
