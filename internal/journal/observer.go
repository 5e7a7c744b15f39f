package journal

import (
	"context"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
)

// DefenseObserver returns a callback that records defense events and logs
// write failures.
func (j *Journal) DefenseObserver(ctx context.Context) func(model.DefenseEvent) {
	return func(ev model.DefenseEvent) {
		if err := j.RecordDefense(ctx, ev); err != nil {
			j.logger.Error("journal write failed", "error", err)
		}
	}
}

// ChangeObserver returns a callback that records file changes stamped with
// now() and logs write failures.
func (j *Journal) ChangeObserver(ctx context.Context, now func() time.Time) func(model.Change) {
	if now == nil {
		now = time.Now
	}
	return func(c model.Change) {
		if err := j.RecordFileChange(ctx, now(), c); err != nil {
			j.logger.Error("journal write failed", "error", err)
		}
	}
}

// AuditObserver returns a callback that records audit results and logs
// write failures.
func (j *Journal) AuditObserver(ctx context.Context) func(model.AuditResult) {
	return func(r model.AuditResult) {
		if err := j.RecordAudit(ctx, r); err != nil {
			j.logger.Error("journal write failed", "error", err)
		}
	}
}
