// Package model defines the core data structures used throughout originlink.
//
// This package contains the following main types:
//   - Ledger: The pending and downloaded URL sets of one run
//   - Provenance: Which source occurrence was rewritten to which local value
//   - Outcome and Batch: Per-URL download results and their aggregate counters
//   - Run: Everything one localization run produces
//
// Multiple packages (extract, download, localize, report, database) need these
// types, so they live here to prevent import cycles. All of them are created
// fresh per invocation and are serializable to JSON for the mapping file, the
// summary reports and the history database.
package model
