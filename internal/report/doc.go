// Package report renders journal contents for the report command.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown with tables and a severity pie chart
//   - JSONWriter: Structured JSON output for tool integration
//
// Writers share the Writer interface and render a Data value built by
// Collect from a journal.
package report
