package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/onionsentry/internal/journal"
	"github.com/nao1215/onionsentry/internal/model"
)

// DateFormat is used for every timestamp in text and Markdown output.
const DateFormat = "2006-01-02 15:04:05 MST"

// Data is the content of one report.
type Data struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     journal.Summary      `json:"summary"`
	Defenses    []model.DefenseEvent `json:"defenses"`
	Changes     []journal.FileChange `json:"changes"`
	Audits      []model.AuditResult  `json:"audits"`
}

// Source is the part of the journal a report reads.
type Source interface {
	Summary(ctx context.Context, since time.Time) (journal.Summary, error)
	RecentDefenses(ctx context.Context, since time.Time, limit int) ([]model.DefenseEvent, error)
	RecentFileChanges(ctx context.Context, since time.Time, limit int) ([]journal.FileChange, error)
	RecentAudits(ctx context.Context, since time.Time, limit int) ([]model.AuditResult, error)
}

// Collect reads the summary and the latest limit rows of each kind
// recorded at or after since.
func Collect(ctx context.Context, src Source, since time.Time, limit int) (*Data, error) {
	summary, err := src.Summary(ctx, since)
	if err != nil {
		return nil, err
	}
	defenses, err := src.RecentDefenses(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	changes, err := src.RecentFileChanges(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	audits, err := src.RecentAudits(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	return &Data{
		GeneratedAt: time.Now(),
		Summary:     summary,
		Defenses:    defenses,
		Changes:     changes,
		Audits:      audits,
	}, nil
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(data *Data) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// checkTitle turns a check identifier such as "safe_logging" into
// "Safe Logging".
func checkTitle(check string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(check, "_", " "))
}

// sinceText describes the start of the reporting period.
func sinceText(since time.Time) string {
	if since.IsZero() {
		return "beginning of journal"
	}
	return since.Format(DateFormat)
}

// defenseText describes one defense event on a single line.
func defenseText(ev model.DefenseEvent) string {
	s := fmt.Sprintf("%s window: %d circuits (limit %d) -> %s",
		ev.Window, ev.Observed, ev.Threshold, ev.Outcome)
	if ev.Error != "" {
		s += " (" + ev.Error + ")"
	}
	return s
}
