package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/onionsentry/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(data *Data) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, data)
	w.writeSummary(md, data)
	w.writeDefenses(md, data)
	w.writeChanges(md, data)
	w.writeAudits(md, data)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with the reporting period.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, data *Data) {
	md.H1("onionsentry Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", data.GeneratedAt.Format(DateFormat)},
			{"Since", sinceText(data.Summary.Since)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the count tables, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, data *Data) {
	s := data.Summary

	md.H2("Defense Triggers")
	md.PlainText("")
	rows := make([][]string, 0, len(model.AllOutcomes())+1)
	for _, o := range model.AllOutcomes() {
		rows = append(rows, []string{o.String(), strconv.Itoa(s.Defenses[o])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(s.TotalDefenses()) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Outcome", "Count"}, Rows: rows})
	md.PlainText("")

	md.H2("File Changes")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"🔴 Critical", strconv.Itoa(s.Changes[model.SeverityCritical])},
			{"🟡 Warning", strconv.Itoa(s.Changes[model.SeverityWarning])},
			{"⚪ Notice", strconv.Itoa(s.Changes[model.SeverityNotice])},
			{"**Total**", "**" + strconv.Itoa(s.TotalChanges()) + "**"},
		},
	})
	md.PlainText("")

	if s.TotalChanges() > 0 {
		w.writePieChart(md, data)
	}
	w.writeAlert(md, data)
}

// writePieChart writes a mermaid pie chart for the change severity
// distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, data *Data) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("File Change Severity Distribution"),
		piechart.WithShowData(true),
	)

	for _, sev := range model.AllSeverities() {
		if n := data.Summary.Changes[sev]; n > 0 {
			chart.LabelAndIntValue(sev.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst event in the period.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, data *Data) {
	s := data.Summary
	switch {
	case s.Changes[model.SeverityCritical] > 0:
		md.Cautionf(
			"%d critical file change(s) detected. The web root may be compromised.",
			s.Changes[model.SeverityCritical],
		)
	case s.Defenses[model.OutcomeFailed] > 0:
		md.Warningf(
			"%d defense trigger(s) failed to reach the control port.",
			s.Defenses[model.OutcomeFailed],
		)
	case s.TotalDefenses() > 0:
		md.Importantf("%d circuit flood(s) detected and answered.", s.TotalDefenses())
	case s.AuditsFailed > 0:
		md.Note("Some privacy checks failed. See the latest results below.")
	default:
		md.Tip("No attacks or critical changes recorded.")
	}
	md.PlainText("")
}

// writeDefenses writes the latest defense events.
func (w *MarkdownWriter) writeDefenses(md *markdown.Markdown, data *Data) {
	md.H2("Recent Defense Events")
	md.PlainText("")

	if len(data.Defenses) == 0 {
		md.PlainText("No defense events recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(data.Defenses))
	for i, ev := range data.Defenses {
		errText := ev.Error
		if errText == "" {
			errText = "-"
		}
		rows[i] = []string{
			ev.At.Format(DateFormat),
			ev.Window.String(),
			strconv.Itoa(ev.Observed) + " / " + strconv.Itoa(ev.Threshold),
			ev.Outcome.String(),
			truncateString(errText, 50),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Time", "Window", "Circuits / Limit", "Outcome", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeChanges writes the latest file changes.
func (w *MarkdownWriter) writeChanges(md *markdown.Markdown, data *Data) {
	md.H2("Recent File Changes")
	md.PlainText("")

	if len(data.Changes) == 0 {
		md.PlainText("No file changes recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(data.Changes))
	for i, c := range data.Changes {
		rows[i] = []string{
			c.At.Format(DateFormat),
			c.Kind.String(),
			c.Severity.String(),
			"`" + truncateString(c.Path, 60) + "`",
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Time", "Change", "Severity", "Path"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeAudits writes the latest privacy check results.
func (w *MarkdownWriter) writeAudits(md *markdown.Markdown, data *Data) {
	md.H2("Privacy Checks")
	md.PlainText("")

	if len(data.Audits) == 0 {
		md.PlainText("No privacy checks recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(data.Audits))
	for i, r := range data.Audits {
		status := "✅ Pass"
		if !r.OK {
			status = "❌ Fail"
		}
		rows[i] = []string{checkTitle(r.Check), status, r.Detail}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Result", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [onionsentry](https://github.com/nao1215/onionsentry)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
