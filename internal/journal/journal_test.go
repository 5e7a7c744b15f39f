package journal

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// setupTestJournal opens a journal in a temporary directory.
func setupTestJournal(t *testing.T, webRoot string) *Journal {
	t.Helper()

	opts := DefaultOptions()
	opts.WebRoot = webRoot
	j, err := Open(filepath.Join(t.TempDir(), "data", FileName), opts)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// TestOpen tests journal creation and the read-only open path.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "a", "b", FileName)
		j, err := Open(path, DefaultOptions())
		if err != nil {
			t.Fatalf("Open() returned error: %v", err)
		}
		defer j.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if j.Path() != path {
			t.Errorf("Path() = %q, expected %q", j.Path(), path)
		}
	})

	t.Run("missing database without create", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), FileName), Options{})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reopen existing database", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), FileName)
		j, err := Open(path, DefaultOptions())
		if err != nil {
			t.Fatalf("Open() returned error: %v", err)
		}
		if err := j.RecordAudit(context.Background(), model.AuditResult{Check: "tor_version", OK: true, At: base}); err != nil {
			t.Fatalf("RecordAudit() returned error: %v", err)
		}
		_ = j.Close()

		j, err = Open(path, Options{EnableWAL: true})
		if err != nil {
			t.Fatalf("reopen returned error: %v", err)
		}
		defer j.Close()

		audits, err := j.RecentAudits(context.Background(), time.Time{}, 0)
		if err != nil || len(audits) != 1 {
			t.Fatalf("RecentAudits() = %v, %v; expected one row", audits, err)
		}
	})
}

// TestDefenseEvents tests storing and reading defense events.
func TestDefenseEvents(t *testing.T) {
	t.Parallel()

	j := setupTestJournal(t, "")
	ctx := context.Background()

	events := []model.DefenseEvent{
		{Detection: model.Detection{Window: model.WindowMinute, Observed: 31, Threshold: 30, At: base}, Outcome: model.OutcomeTriggered},
		{Detection: model.Detection{Window: model.WindowBurst, Observed: 16, Threshold: 15, At: base.Add(time.Second)}, Outcome: model.OutcomeRateLimited},
		{Detection: model.Detection{Window: model.WindowBurst, Observed: 17, Threshold: 15, At: base.Add(2 * time.Second)}, Outcome: model.OutcomeFailed, Error: "control port closed"},
	}
	for _, ev := range events {
		if err := j.RecordDefense(ctx, ev); err != nil {
			t.Fatalf("RecordDefense() returned error: %v", err)
		}
	}

	got, err := j.RecentDefenses(ctx, time.Time{}, 2)
	if err != nil {
		t.Fatalf("RecentDefenses() returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentDefenses() returned %d events, expected 2", len(got))
	}
	if got[0].Outcome != model.OutcomeFailed || got[0].Error != "control port closed" {
		t.Errorf("newest event = %+v", got[0])
	}
	if got[1].Window != model.WindowBurst || got[1].Observed != 16 || !got[1].At.Equal(base.Add(time.Second)) {
		t.Errorf("second event = %+v", got[1])
	}

	got, err = j.RecentDefenses(ctx, base.Add(time.Second), 0)
	if err != nil || len(got) != 2 {
		t.Errorf("RecentDefenses(since) = %d events, %v; expected 2", len(got), err)
	}
}

// TestFileChanges tests relative paths and ordering of file changes.
func TestFileChanges(t *testing.T) {
	t.Parallel()

	j := setupTestJournal(t, "/var/www/onion_site")
	ctx := context.Background()

	changes := []model.Change{
		{Path: "/var/www/onion_site/index.html", Kind: model.ChangeModified, Severity: model.SeverityNotice},
		{Path: "/var/www/onion_site/up/shell.php", Kind: model.ChangeAdded, Severity: model.SeverityCritical},
		{Path: "/etc/passwd", Kind: model.ChangeRemoved, Severity: model.SeverityNotice},
	}
	for i, c := range changes {
		if err := j.RecordFileChange(ctx, base.Add(time.Duration(i)*time.Minute), c); err != nil {
			t.Fatalf("RecordFileChange() returned error: %v", err)
		}
	}

	got, err := j.RecentFileChanges(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("RecentFileChanges() returned error: %v", err)
	}

	expected := []string{"passwd", filepath.Join("up", "shell.php"), "index.html"}
	if len(got) != len(expected) {
		t.Fatalf("got %d changes, expected %d", len(got), len(expected))
	}
	for i, path := range expected {
		if got[i].Path != path {
			t.Errorf("change %d path = %q, expected %q", i, got[i].Path, path)
		}
	}
	if got[1].Kind != model.ChangeAdded || got[1].Severity != model.SeverityCritical {
		t.Errorf("change 1 = %+v", got[1])
	}
}

// TestSummary tests aggregate counts.
func TestSummary(t *testing.T) {
	t.Parallel()

	j := setupTestJournal(t, "/srv")
	ctx := context.Background()

	old := base.Add(-48 * time.Hour)
	mustNil := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mustNil(j.RecordDefense(ctx, model.DefenseEvent{Detection: model.Detection{At: old}, Outcome: model.OutcomeTriggered}))
	mustNil(j.RecordDefense(ctx, model.DefenseEvent{Detection: model.Detection{At: base}, Outcome: model.OutcomeTriggered}))
	mustNil(j.RecordDefense(ctx, model.DefenseEvent{Detection: model.Detection{At: base}, Outcome: model.OutcomeRateLimited}))
	mustNil(j.RecordFileChange(ctx, base, model.Change{Path: "/srv/a.sh", Kind: model.ChangeAdded, Severity: model.SeverityCritical}))
	mustNil(j.RecordFileChange(ctx, base, model.Change{Path: "/srv/b.txt", Kind: model.ChangeModified, Severity: model.SeverityNotice}))
	mustNil(j.RecordFileChange(ctx, old, model.Change{Path: "/srv/c.txt", Kind: model.ChangeRemoved, Severity: model.SeverityNotice}))
	mustNil(j.RecordAudit(ctx, model.AuditResult{Check: "safe_logging", OK: true, At: base}))
	mustNil(j.RecordAudit(ctx, model.AuditResult{Check: "socks_proxy", OK: false, At: base}))

	s, err := j.Summary(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summary() returned error: %v", err)
	}

	if s.Defenses[model.OutcomeTriggered] != 1 || s.Defenses[model.OutcomeRateLimited] != 1 {
		t.Errorf("Defenses = %v", s.Defenses)
	}
	if s.TotalDefenses() != 2 {
		t.Errorf("TotalDefenses() = %d, expected 2", s.TotalDefenses())
	}
	if s.Changes[model.SeverityCritical] != 1 || s.Changes[model.SeverityNotice] != 1 || s.TotalChanges() != 2 {
		t.Errorf("Changes = %v", s.Changes)
	}
	if s.ChangeKinds[model.ChangeAdded] != 1 || s.ChangeKinds[model.ChangeRemoved] != 0 {
		t.Errorf("ChangeKinds = %v", s.ChangeKinds)
	}
	if s.AuditsPassed != 1 || s.AuditsFailed != 1 {
		t.Errorf("audits = %d passed, %d failed", s.AuditsPassed, s.AuditsFailed)
	}

	all, err := j.Summary(ctx, time.Time{})
	if err != nil || all.TotalDefenses() != 3 || all.TotalChanges() != 3 {
		t.Errorf("Summary(zero) = %+v, %v", all, err)
	}
}

// TestObservers tests the callback helpers and their failure logging.
func TestObservers(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	j, err := Open(filepath.Join(t.TempDir(), FileName), opts)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	ctx := context.Background()
	j.DefenseObserver(ctx)(model.DefenseEvent{Detection: model.Detection{At: base}, Outcome: model.OutcomeTriggered})
	j.ChangeObserver(ctx, func() time.Time { return base })(model.Change{Path: "/x", Kind: model.ChangeAdded})
	j.AuditObserver(ctx)(model.AuditResult{Check: "tor_version", OK: true, At: base})

	s, err := j.Summary(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Summary() returned error: %v", err)
	}
	if s.TotalDefenses() != 1 || s.TotalChanges() != 1 || s.AuditsPassed != 1 {
		t.Errorf("observers did not record: %+v", s)
	}

	_ = j.Close()
	j.AuditObserver(ctx)(model.AuditResult{Check: "tor_version", At: base})
	if !strings.Contains(logs.String(), "journal write failed") {
		t.Errorf("expected logged write failure, got %q", logs.String())
	}
}
