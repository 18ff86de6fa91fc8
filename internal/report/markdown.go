package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/originlink/internal/model"
)

// MarkdownWriter outputs run summaries in Markdown format.
// This format is designed for documentation and sharing, e.g. as a CI
// job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run summary in Markdown format.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)
	s := NewSummary(run)

	w.writeHeader(md, s)
	w.writeStatistics(md, s)
	w.writeFailures(md, s)
	w.writeRuntimeAssets(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the title and the status alert.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("originlink Summary")
	md.PlainText("")

	switch {
	case s.Status == model.RunInterrupted:
		md.Warningf("The run was interrupted after %d download(s). Nothing was promoted.", s.Total)
	case s.Status == model.RunFailed:
		md.Cautionf("The run failed after %s. Nothing was promoted.", s.Elapsed)
	case s.Fail > 0:
		md.Importantf("%d of %d download(s) failed. Their references still point to the mirror path.", s.Fail, s.Total)
	case s.Total == 0:
		md.Note("No external references were found.")
	default:
		md.Tip("Every external asset was localized.")
	}
	md.PlainText("")
}

// writeStatistics writes the statistics table and the outcome chart.
func (w *MarkdownWriter) writeStatistics(md *markdown.Markdown, s *Summary) {
	md.H2("Statistics")
	md.PlainText("")

	rows := [][]string{
		{"Status", label(s.Status)},
		{"Total", strconv.Itoa(s.Total)},
		{"Success", strconv.Itoa(s.Success)},
		{"Fail", strconv.Itoa(s.Fail)},
		{"Fetch phases", strconv.Itoa(s.FetchPhases)},
		{"Runtime assets", strconv.Itoa(s.DynamicURLs)},
		{"Replaced dir", "`" + s.ReplacedDir + "`"},
		{"Download dir", "`" + s.DownloadDir + "`"},
		{"Download size", s.SizeText()},
		{"Link type", label(string(s.LinkType))},
	}
	if s.Origin != "" {
		rows = append(rows, []string{"Replace origin", "`" + s.Origin + "`"})
	}
	rows = append(rows, []string{"Elapsed", s.Elapsed.String()})
	if s.DiscoveryError != "" {
		rows = append(rows, []string{"Discovery", "degraded: " + s.DiscoveryError})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}
}

// writePieChart writes a mermaid pie chart of download outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Download Outcomes"),
		piechart.WithShowData(true),
	)

	if s.Success > 0 {
		chart.LabelAndIntValue(label(string(model.StatusSuccess)), uint64(s.Success)) //nolint:gosec // positive count
	}
	if s.Fail > 0 {
		chart.LabelAndIntValue(label(string(model.StatusFail)), uint64(s.Fail)) //nolint:gosec // positive count
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFailures writes the failed downloads table.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, s *Summary) {
	if len(s.Failed) == 0 {
		return
	}

	md.H2("Failed Downloads")
	md.PlainText("")

	rows := make([][]string, len(s.Failed))
	for i, o := range s.Failed {
		reason := o.Error
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{"`" + o.URL + "`", truncateString(reason, 80)}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeRuntimeAssets lists the URLs only the browser pass found.
func (w *MarkdownWriter) writeRuntimeAssets(md *markdown.Markdown, run *model.Run) {
	if len(run.DynamicURLs) == 0 {
		return
	}

	md.H2("Runtime Assets")
	md.PlainText("")
	md.BulletList(run.DynamicURLs...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [originlink](https://github.com/nao1215/originlink)*")
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
