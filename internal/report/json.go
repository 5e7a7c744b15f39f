package report

import (
	"encoding/json"
	"io"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printing.
	indent bool

	// indentPrefix is the prefix for each line when indenting.
	indentPrefix string

	// indentString is the indent string per level.
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps report data with a format version.
type JSONReport struct {
	// Version is the JSON layout version.
	Version string `json:"version"`

	*Data
}

// JSONFormatVersion is the current JSON layout version.
const JSONFormatVersion = "1"

// Write outputs the report as JSON followed by a newline.
func (w *JSONWriter) Write(data *Data) (int, error) {
	v := JSONReport{Version: JSONFormatVersion, Data: data}

	var (
		out []byte
		err error
	)
	if w.indent {
		out, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	out = append(out, '\n')
	return w.output.Write(out)
}
