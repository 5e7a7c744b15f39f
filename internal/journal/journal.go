package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onionsentry/internal/model"
)

// FileName is the database file name inside the journal directory.
const FileName = "journal.db"

// DefaultRecentLimit is the number of rows returned by the Recent queries
// when no positive limit is given.
const DefaultRecentLimit = 10

// timeFormat is fixed width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Open when the database does not exist and
// creation is disabled.
var ErrNotFound = errors.New("journal not found")

// Journal is the event store.
type Journal struct {
	db      *sql.DB
	path    string
	webRoot string
	logger  *slog.Logger
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file.
	// The report command opens the journal without it.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// WebRoot makes recorded file paths relative to it.
	WebRoot string

	// Logger receives write failures from the observer helpers.
	Logger *slog.Logger
}

// DefaultOptions returns the options used by the daemon.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens the journal database at path.
func Open(path string, opts Options) (*Journal, error) {
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to check journal path: %w", err)
	}

	dsn := path + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	j := &Journal{db: db, path: path, webRoot: opts.WebRoot, logger: opts.Logger}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS defense_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		detection_window TEXT NOT NULL,
		observed INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_defense_at ON defense_events(at);

	CREATE TABLE IF NOT EXISTS file_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_changes_at ON file_changes(at);

	CREATE TABLE IF NOT EXISTS audit_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		check_name TEXT NOT NULL,
		ok INTEGER NOT NULL,
		detail TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audits_at ON audit_results(at);
	`
	_, err := j.db.ExecContext(context.Background(), schema)
	return err
}

// FileChange is a stored file change.
type FileChange struct {
	model.Change

	// At is when the change was detected.
	At time.Time `json:"at"`
}

// RecordDefense stores a defense event.
func (j *Journal) RecordDefense(ctx context.Context, ev model.DefenseEvent) error {
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO defense_events (at, detection_window, observed, threshold, outcome, error)
	VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ev.At), ev.Window.String(), ev.Observed, ev.Threshold, ev.Outcome.String(), ev.Error)
	if err != nil {
		return fmt.Errorf("failed to record defense event: %w", err)
	}
	return nil
}

// RecordFileChange stores a file change detected at at.
func (j *Journal) RecordFileChange(ctx context.Context, at time.Time, c model.Change) error {
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO file_changes (at, path, kind, severity)
	VALUES (?, ?, ?, ?)`,
		formatTime(at), j.relPath(c.Path), c.Kind.String(), c.Severity.String())
	if err != nil {
		return fmt.Errorf("failed to record file change: %w", err)
	}
	return nil
}

// RecordAudit stores a privacy check result.
func (j *Journal) RecordAudit(ctx context.Context, r model.AuditResult) error {
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO audit_results (at, check_name, ok, detail)
	VALUES (?, ?, ?, ?)`,
		formatTime(r.At), r.Check, ok, r.Detail)
	if err != nil {
		return fmt.Errorf("failed to record audit result: %w", err)
	}
	return nil
}

// relPath returns p relative to the web root. Paths outside the root keep
// only their base name.
func (j *Journal) relPath(p string) string {
	if j.webRoot == "" {
		return p
	}
	rel, err := filepath.Rel(j.webRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(p)
	}
	return rel
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
