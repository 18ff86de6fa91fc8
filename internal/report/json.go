package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/originlink/internal/model"
)

// JSONWriter outputs run summaries in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written into the report envelope.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentString = "  "
	}
}

// WithVersion sets the version recorded in the report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
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

// JSONReport is the envelope written by JSONWriter.
type JSONReport struct {
	// Version is the originlink version that produced the run.
	Version string `json:"version,omitempty"`

	// Summary holds the statistics.
	Summary *Summary `json:"summary"`

	// Run is the full run, including outcomes and the mapping.
	Run *model.Run `json:"run"`
}

// Write outputs the run wrapped with its summary.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Summary: NewSummary(run),
		Run:     run,
	})
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, "", w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
