package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/onionsentry/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections without rows are shown.
	showEmpty bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(data *Data) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, data)
	w.writeSummary(&sb, data)
	w.writeDefenses(&sb, data)
	w.writeChanges(&sb, data)
	w.writeAudits(&sb, data)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with the reporting period.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, data *Data) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       ONIONSENTRY REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Generated: %s\n", data.GeneratedAt.Format(DateFormat))
	fmt.Fprintf(sb, "Since:     %s\n\n", sinceText(data.Summary.Since))
}

// writeSummary writes trigger and change counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, data *Data) {
	section(sb, "SUMMARY")

	s := data.Summary
	sb.WriteString("  Defense triggers:\n")
	for _, o := range model.AllOutcomes() {
		fmt.Fprintf(sb, "    %-13s %d\n", o.String()+":", s.Defenses[o])
	}
	sb.WriteString("\n  File changes:\n")
	for _, sev := range model.AllSeverities() {
		fmt.Fprintf(sb, "    %-13s %d\n", sev.String()+":", s.Changes[sev])
	}
	fmt.Fprintf(sb, "\n  Privacy checks: %d passed, %d failed\n\n", s.AuditsPassed, s.AuditsFailed)
}

// writeDefenses writes the latest defense events.
func (w *SimpleWriter) writeDefenses(sb *strings.Builder, data *Data) {
	if len(data.Defenses) == 0 && !w.showEmpty {
		return
	}
	section(sb, "RECENT DEFENSE EVENTS")

	if len(data.Defenses) == 0 {
		sb.WriteString("  No defense events\n\n")
		return
	}
	for _, ev := range data.Defenses {
		fmt.Fprintf(sb, "  [%s] %s\n", ev.At.Format(DateFormat), defenseText(ev))
	}
	sb.WriteString("\n")
}

// writeChanges writes the latest file changes.
func (w *SimpleWriter) writeChanges(sb *strings.Builder, data *Data) {
	if len(data.Changes) == 0 && !w.showEmpty {
		return
	}
	section(sb, "RECENT FILE CHANGES")

	if len(data.Changes) == 0 {
		sb.WriteString("  No file changes\n\n")
		return
	}
	for _, c := range data.Changes {
		fmt.Fprintf(sb, "  [%s] %-3s %-8s %s\n",
			c.At.Format(DateFormat), severityIndicator(c.Severity), c.Kind, c.Path)
	}
	sb.WriteString("\n")
}

// writeAudits writes the latest privacy check results.
func (w *SimpleWriter) writeAudits(sb *strings.Builder, data *Data) {
	if len(data.Audits) == 0 && !w.showEmpty {
		return
	}
	section(sb, "RECENT PRIVACY CHECKS")

	if len(data.Audits) == 0 {
		sb.WriteString("  No privacy checks\n\n")
		return
	}
	for _, r := range data.Audits {
		mark := "[+]"
		if !r.OK {
			mark = "[!]"
		}
		fmt.Fprintf(sb, "  %s %s: %s\n", mark, checkTitle(r.Check), r.Detail)
	}
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "!!!"
	case model.SeverityWarning:
		return "!"
	default:
		return "-"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by onionsentry\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
