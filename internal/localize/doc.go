// Package localize runs the discovery, download and rewrite fixpoint.
//
// The driver is a small state machine:
//
//	scan -> reconcile -> fetch -> scan -> ... -> done
//
// The first scan walks the source tree and writes a rewritten copy of every
// file into the replace staging tree. Every later scan covers only the files
// the previous batch downloaded and rewrites them in place. Reconcile moves
// the ledger's pending URLs into the downloaded set; when nothing is pending
// the run has converged. Since each URL is attempted at most once and each
// scan reads only new bytes, the loop always terminates.
package localize
