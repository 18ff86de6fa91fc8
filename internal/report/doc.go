// Package report writes the results of a localization run.
//
// Summary writers render the statistics of a run for people and tools:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown with tables and a mermaid chart for sharing
//   - JSONWriter: Structured JSON output for tool integration
//
// WriteMappingFile exports the provenance mapping of a run: every original
// URL with the files that referenced it and the value it was rewritten to.
package report
