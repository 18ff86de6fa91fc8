// Package download mirrors external assets into a staging directory.
//
// A Coordinator takes a batch of URLs, maps each onto a destination path
// under its root and fetches them through a bounded worker pool. Every URL
// is attempted once. Failures are recorded per URL and never abort the
// batch; the staging tree only ever holds complete files.
package download
