package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/originlink/internal/model"
)

// SimpleWriter outputs human-readable text summaries.
// This format is designed for terminal display: a statistics table,
// then the failing URLs.
type SimpleWriter struct {
	baseWriter

	// verbose lists every downloaded URL, not only the failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
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

// Write outputs the run summary in human-readable format.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder
	s := NewSummary(run)

	w.writeStatistics(&sb, s)
	w.writeFailures(&sb, s)
	if w.verbose {
		w.writeDownloads(&sb, run)
	}
	if run.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Error: %s\n\n", run.ErrorMessage))
	}

	return w.output.Write([]byte(sb.String()))
}

// writeStatistics writes the statistics table.
func (w *SimpleWriter) writeStatistics(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	sb.WriteString("                     ORIGINLINK SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	rows := [][2]string{
		{"Status", label(s.Status)},
		{"Total", fmt.Sprintf("%d", s.Total)},
		{"Success", fmt.Sprintf("%d", s.Success)},
		{"Fail", fmt.Sprintf("%d", s.Fail)},
		{"Fetch phases", fmt.Sprintf("%d", s.FetchPhases)},
		{"Runtime assets", fmt.Sprintf("%d", s.DynamicURLs)},
		{"Replaced dir", s.ReplacedDir},
		{"Download dir", s.DownloadDir},
		{"Download size", s.SizeText()},
		{"Link type", label(string(s.LinkType))},
	}
	if s.Origin != "" {
		rows = append(rows, [2]string{"Replace origin", s.Origin})
	}
	rows = append(rows, [2]string{"Elapsed", s.Elapsed.String()})

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("  %-16s %s\n", r[0]+":", r[1]))
	}
	if s.DiscoveryError != "" {
		sb.WriteString(fmt.Sprintf("  %-16s %s\n", "Discovery:", "degraded - "+s.DiscoveryError))
	}
	sb.WriteString("\n")
}

// writeFailures lists the URLs that could not be downloaded.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, s *Summary) {
	if len(s.Failed) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("FAILED DOWNLOADS\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	for _, o := range s.Failed {
		sb.WriteString(fmt.Sprintf("  [x] %s\n", o.URL))
		if o.Error != "" {
			sb.WriteString(fmt.Sprintf("      %s\n", o.Error))
		}
	}
	sb.WriteString("\n")
}

// writeDownloads lists every successful download with its destination.
func (w *SimpleWriter) writeDownloads(sb *strings.Builder, run *model.Run) {
	if run.SuccessCount() == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("DOWNLOADS\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	for _, o := range run.Outcomes {
		if o.Status != model.StatusSuccess {
			continue
		}
		sb.WriteString(fmt.Sprintf("  [+] %s\n      -> %s\n", o.URL, o.Destination))
	}
	sb.WriteString("\n")
}
