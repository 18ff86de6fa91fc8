// Package database provides SQLite-based storage of the run history.
//
// Every finished run is saved with its statistics, its download outcomes
// and the references it rewrote. The history lets a user list past runs,
// inspect one, and compare two runs to see which assets appeared,
// disappeared or changed status.
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver. The
// database is a single file in the XDG data directory.
package database
