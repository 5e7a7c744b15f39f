package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
)

// Summary aggregates the journal since a point in time.
type Summary struct {
	Since        time.Time                `json:"since"`
	Defenses     map[model.Outcome]int    `json:"defenses"`
	Changes      map[model.Severity]int   `json:"changes"`
	ChangeKinds  map[model.ChangeKind]int `json:"change_kinds"`
	AuditsPassed int                      `json:"audits_passed"`
	AuditsFailed int                      `json:"audits_failed"`
}

// TotalDefenses returns the number of defense events of any outcome.
func (s Summary) TotalDefenses() int {
	total := 0
	for _, n := range s.Defenses {
		total += n
	}
	return total
}

// TotalChanges returns the number of file changes of any severity.
func (s Summary) TotalChanges() int {
	total := 0
	for _, n := range s.Changes {
		total += n
	}
	return total
}

// Summary counts the rows recorded at or after since.
func (j *Journal) Summary(ctx context.Context, since time.Time) (Summary, error) {
	s := Summary{
		Since:       since,
		Defenses:    make(map[model.Outcome]int),
		Changes:     make(map[model.Severity]int),
		ChangeKinds: make(map[model.ChangeKind]int),
	}
	from := formatTime(since)

	err := j.countBy(ctx, `SELECT outcome, COUNT(*) FROM defense_events WHERE at >= ? GROUP BY outcome`, from,
		func(name string, n int) {
			if o, ok := model.ParseOutcome(name); ok {
				s.Defenses[o] = n
			}
		})
	if err != nil {
		return s, fmt.Errorf("failed to summarize defense events: %w", err)
	}

	err = j.countBy(ctx, `SELECT severity, COUNT(*) FROM file_changes WHERE at >= ? GROUP BY severity`, from,
		func(name string, n int) {
			if sev, ok := model.ParseSeverity(name); ok {
				s.Changes[sev] = n
			}
		})
	if err != nil {
		return s, fmt.Errorf("failed to summarize file changes: %w", err)
	}

	err = j.countBy(ctx, `SELECT kind, COUNT(*) FROM file_changes WHERE at >= ? GROUP BY kind`, from,
		func(name string, n int) {
			if k, ok := model.ParseChangeKind(name); ok {
				s.ChangeKinds[k] = n
			}
		})
	if err != nil {
		return s, fmt.Errorf("failed to summarize file changes: %w", err)
	}

	err = j.countBy(ctx, `SELECT CAST(ok AS TEXT), COUNT(*) FROM audit_results WHERE at >= ? GROUP BY ok`, from,
		func(ok string, n int) {
			if ok == "1" {
				s.AuditsPassed = n
			} else {
				s.AuditsFailed += n
			}
		})
	if err != nil {
		return s, fmt.Errorf("failed to summarize audit results: %w", err)
	}
	return s, nil
}

func (j *Journal) countBy(ctx context.Context, query, from string, fn func(string, int)) error {
	rows, err := j.db.QueryContext(ctx, query, from)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return err
		}
		fn(name, count)
	}
	return rows.Err()
}

// RecentDefenses returns the newest defense events recorded at or after
// since, newest first.
func (j *Journal) RecentDefenses(ctx context.Context, since time.Time, limit int) ([]model.DefenseEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT at, detection_window, observed, threshold, outcome, error
	FROM defense_events WHERE at >= ?
	ORDER BY at DESC, id DESC LIMIT ?`, formatTime(since), recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query defense events: %w", err)
	}
	defer rows.Close()

	var events []model.DefenseEvent
	for rows.Next() {
		var (
			ev              model.DefenseEvent
			at, win, result string
		)
		if err := rows.Scan(&at, &win, &ev.Observed, &ev.Threshold, &result, &ev.Error); err != nil {
			return nil, fmt.Errorf("failed to scan defense event: %w", err)
		}
		ev.At = parseTime(at)
		ev.Window, _ = model.ParseWindow(win)
		ev.Outcome, _ = model.ParseOutcome(result)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentFileChanges returns the newest file changes recorded at or after
// since, newest first.
func (j *Journal) RecentFileChanges(ctx context.Context, since time.Time, limit int) ([]FileChange, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT at, path, kind, severity
	FROM file_changes WHERE at >= ?
	ORDER BY at DESC, id DESC LIMIT ?`, formatTime(since), recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query file changes: %w", err)
	}
	defer rows.Close()

	var changes []FileChange
	for rows.Next() {
		var (
			fc                 FileChange
			at, kind, severity string
		)
		if err := rows.Scan(&at, &fc.Path, &kind, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan file change: %w", err)
		}
		fc.At = parseTime(at)
		fc.Kind, _ = model.ParseChangeKind(kind)
		fc.Severity, _ = model.ParseSeverity(severity)
		changes = append(changes, fc)
	}
	return changes, rows.Err()
}

// RecentAudits returns the newest audit results recorded at or after
// since, newest first.
func (j *Journal) RecentAudits(ctx context.Context, since time.Time, limit int) ([]model.AuditResult, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT at, check_name, ok, detail
	FROM audit_results WHERE at >= ?
	ORDER BY at DESC, id DESC LIMIT ?`, formatTime(since), recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit results: %w", err)
	}
	defer rows.Close()

	var results []model.AuditResult
	for rows.Next() {
		var (
			r  model.AuditResult
			at string
			ok int
		)
		if err := rows.Scan(&at, &r.Check, &ok, &r.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit result: %w", err)
		}
		r.At = parseTime(at)
		r.OK = ok == 1
		results = append(results, r)
	}
	return results, rows.Err()
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
