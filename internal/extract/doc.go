// Package extract finds references to externally hosted assets in text
// content and rewrites them.
//
// Three grammars exist, selected by model.FileClass:
//
//   - markup (HTML, EJS): script tags are inspected first so that aggregated
//     "??" requests can be split into one tag per sub-resource and every
//     other qualifying script source is rewritten in place. Then every
//     quoted absolute or protocol-relative URL ending with a configured
//     extension is rewritten.
//   - stylesheet (CSS): every url(...) pointing at another host is rewritten,
//     whatever its extension.
//   - generic (everything else): quoted http(s) URLs ending with a configured
//     extension are rewritten. Protocol-relative candidates are left alone.
//
// Extraction is a pure text transform. Recording where a rewrite happened is
// the job of the Rewriter passed in by the caller.
package extract
