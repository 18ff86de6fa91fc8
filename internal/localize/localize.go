package localize

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nao1215/originlink/internal/extract"
	"github.com/nao1215/originlink/internal/model"
	"github.com/nao1215/originlink/internal/rewrite"
	"github.com/nao1215/originlink/internal/staging"
)

// skippedDirs are never descended into.
var skippedDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
}

// Downloader fetches one batch of URLs. download.Coordinator implements it.
type Downloader interface {
	Fetch(ctx context.Context, urls []string) (*model.Batch, error)
}

type state int

const (
	stateScan state = iota
	stateReconcile
	stateFetch
	stateDone
)

func (s state) String() string {
	switch s {
	case stateScan:
		return "scan"
	case stateReconcile:
		return "reconcile"
	case stateFetch:
		return "fetch"
	default:
		return "done"
	}
}

// Driver runs the fixpoint for one run.
type Driver struct {
	workspace  *staging.Workspace
	extractor  *extract.Extractor
	origin     *rewrite.Origin
	downloader Downloader
	ignore     []string
	logger     *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithIgnore sets glob patterns (path.Match syntax) for source files to
// leave out of the rewritten tree. A pattern is matched against the
// slash-separated path relative to the source directory and against the
// base name.
func WithIgnore(patterns []string) Option {
	return func(d *Driver) {
		d.ignore = append(d.ignore, patterns...)
	}
}

// NewDriver creates a Driver.
func NewDriver(ws *staging.Workspace, ex *extract.Extractor, origin *rewrite.Origin, dl Downloader, opts ...Option) *Driver {
	d := &Driver{
		workspace:  ws,
		extractor:  ex,
		origin:     origin,
		downloader: dl,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the fixpoint to convergence, recording everything into run.
// The only errors are staging I/O failures, a fatal download error and
// context cancellation.
func (d *Driver) Run(ctx context.Context, run *model.Run) error {
	var (
		current  = stateScan
		first    = true
		toScan   []string
		toFetch  []string
		newFound int
	)

	for current != stateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.logger.Debug("fixpoint state", "state", current, "phase", run.FetchPhases)

		switch current {
		case stateScan:
			var err error
			if first {
				newFound, err = d.scanSource(run)
				first = false
			} else {
				newFound, err = d.scanDownloaded(run, toScan)
			}
			if err != nil {
				return err
			}
			d.logger.Info("scan complete", "phase", run.FetchPhases, "new_urls", newFound)
			current = stateReconcile

		case stateReconcile:
			toFetch = run.Ledger.TakePending()
			if len(toFetch) == 0 {
				current = stateDone
				continue
			}
			current = stateFetch

		case stateFetch:
			batch, err := d.downloader.Fetch(ctx, toFetch)
			if batch != nil {
				run.AddBatch(batch)
			}
			if err != nil {
				return fmt.Errorf("fetch phase %d: %w", run.FetchPhases+1, err)
			}
			run.FetchPhases++

			toScan = toScan[:0]
			for _, o := range batch.Succeeded() {
				toScan = append(toScan, o.Destination)
			}
			current = stateScan
		}
	}

	d.logger.Info("fixpoint converged",
		"fetch_phases", run.FetchPhases,
		"urls", run.Ledger.Len(),
		"scanned_files", run.ScannedFiles,
	)
	return nil
}

// scanSource walks the source directory in lexical order and writes a
// rewritten copy of every file into the replace staging tree.
func (d *Driver) scanSource(run *model.Run) (int, error) {
	src := d.workspace.SourceDir()
	found := 0

	err := filepath.WalkDir(src, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if p == src {
				return nil
			}
			if _, skip := skippedDirs[entry.Name()]; skip || d.workspace.Excluded(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || d.skipFile(src, p) {
			return nil
		}

		dest, err := d.workspace.StagePath(p)
		if err != nil {
			return err
		}
		n, err := d.rewriteFile(run, p, dest)
		found += n
		return err
	})
	if err != nil {
		return found, fmt.Errorf("scan source: %w", err)
	}
	return found, nil
}

// scanDownloaded rewrites freshly downloaded files in place.
func (d *Driver) scanDownloaded(run *model.Run, files []string) (int, error) {
	found := 0
	for _, p := range files {
		n, err := d.rewriteFile(run, p, p)
		found += n
		if err != nil {
			return found, fmt.Errorf("scan downloads: %w", err)
		}
	}
	return found, nil
}

// rewriteFile extracts src, writes the result to dest and feeds every URL
// found into the ledger. It returns the number of URLs that were new.
func (d *Driver) rewriteFile(run *model.Run, src, dest string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	content, err := os.ReadFile(src) //nolint:gosec // path comes from walking the source or staging tree
	if err != nil {
		return 0, err
	}

	display := d.workspace.DisplayPath(dest)
	res := d.extractor.Extract(content, model.Classify(src), d.origin.ForFile(display, run.Provenance))
	run.ScannedFiles++

	found := 0
	for _, u := range res.URLs {
		if run.Ledger.Discover(u) {
			found++
		}
	}

	if src == dest && len(res.URLs) == 0 {
		return found, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return found, err
	}
	if err := os.WriteFile(dest, res.Content, info.Mode().Perm()); err != nil {
		return found, err
	}
	if len(res.URLs) > 0 {
		d.logger.Debug("rewrote file", "file", display, "urls", len(res.URLs))
	}
	return found, nil
}

func (d *Driver) skipFile(root, p string) bool {
	name := filepath.Base(p)
	if strings.HasSuffix(name, ".lock") {
		return true
	}
	if len(d.ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range d.ignore {
		if ok, _ := path.Match(pattern, rel); ok { //nolint:errcheck // bad patterns are rejected by config validation
			return true
		}
		if ok, _ := path.Match(pattern, name); ok { //nolint:errcheck // bad patterns are rejected by config validation
			return true
		}
	}
	return false
}
