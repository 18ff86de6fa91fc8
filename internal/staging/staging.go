package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrSourceNotFound is returned when the source directory does not exist.
	ErrSourceNotFound = errors.New("source directory not found")

	// ErrSourceNotDir is returned when the source path is not a directory.
	ErrSourceNotDir = errors.New("source path is not a directory")

	// ErrUnsafeOutput is returned when promoting an output directory would
	// delete the source tree.
	ErrUnsafeOutput = errors.New("output directory would replace the source tree")

	// ErrPromote is returned when a staging tree cannot be moved into place.
	ErrPromote = errors.New("failed to promote staging tree")
)

// Workspace maps a run's source tree onto two staging trees, one for the
// rewritten sources and one for downloaded assets.
type Workspace struct {
	sourceDir   string
	replacedDir string
	downloadDir string
	workDir     string

	root          string
	replaceStage  string
	downloadStage string

	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWorkDir sets the directory display paths are made relative to.
// Defaults to the process working directory.
func WithWorkDir(dir string) Option {
	return func(w *Workspace) {
		w.workDir = dir
	}
}

// New validates the directories and creates the staging trees next to
// replacedDir so that promotion is normally a rename on the same device.
func New(sourceDir, replacedDir, downloadDir string, opts ...Option) (*Workspace, error) {
	w := &Workspace{logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	if w.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		w.workDir = wd
	}

	w.sourceDir = w.abs(sourceDir)
	w.replacedDir = w.abs(replacedDir)
	w.downloadDir = w.abs(downloadDir)

	info, err := os.Stat(w.sourceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceDir)
		}
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotDir, sourceDir)
	}

	if w.replacedDir != w.sourceDir && Within(w.sourceDir, w.replacedDir) {
		return nil, fmt.Errorf("%w: %s contains %s", ErrUnsafeOutput, replacedDir, sourceDir)
	}
	if Within(w.sourceDir, w.downloadDir) || Within(w.replacedDir, w.downloadDir) {
		return nil, fmt.Errorf("%w: %s contains %s", ErrUnsafeOutput, downloadDir, replacedDir)
	}

	parent := filepath.Dir(w.replacedDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output parent: %w", err)
	}
	root, err := os.MkdirTemp(parent, ".originlink-staging-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	w.root = root
	w.replaceStage = filepath.Join(w.root, "replace")
	w.downloadStage = filepath.Join(w.root, "download")
	for _, dir := range []string{w.replaceStage, w.downloadStage} {
		if err := os.Mkdir(dir, 0o750); err != nil {
			_ = os.RemoveAll(w.root) //nolint:errcheck // mkdir error takes precedence
			return nil, fmt.Errorf("failed to create staging tree: %w", err)
		}
	}

	w.logger.Debug("staging created", "root", w.root)
	return w, nil
}

func (w *Workspace) abs(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.workDir, p)
	}
	return filepath.Clean(p)
}

// SourceDir returns the absolute source directory.
func (w *Workspace) SourceDir() string { return w.sourceDir }

// ReplacedDir returns the absolute final location of the rewritten tree.
func (w *Workspace) ReplacedDir() string { return w.replacedDir }

// DownloadDir returns the absolute final location of the mirror.
func (w *Workspace) DownloadDir() string { return w.downloadDir }

// ReplaceStage returns the staging tree for rewritten sources.
func (w *Workspace) ReplaceStage() string { return w.replaceStage }

// DownloadStage returns the staging tree for downloaded assets.
func (w *Workspace) DownloadStage() string { return w.downloadStage }

// DownloadDirName is the base name of the download directory, the first
// segment of every mirror path.
func (w *Workspace) DownloadDirName() string { return filepath.Base(w.downloadDir) }

// StagePath maps a file below the source directory to its place in the
// replace staging tree.
func (w *Workspace) StagePath(sourcePath string) (string, error) {
	rel, err := filepath.Rel(w.sourceDir, sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to map %s: %w", sourcePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", sourcePath, w.sourceDir)
	}
	return filepath.Join(w.replaceStage, rel), nil
}

// DisplayPath maps a staging path onto the path it will have after
// promotion, relative to the working directory when possible and always
// slash-separated.
func (w *Workspace) DisplayPath(stagePath string) string {
	final := stagePath
	switch {
	case Within(stagePath, w.replaceStage):
		rel, _ := filepath.Rel(w.replaceStage, stagePath) //nolint:errcheck // Within guarantees a relative path
		final = filepath.Join(w.replacedDir, rel)
	case Within(stagePath, w.downloadStage):
		rel, _ := filepath.Rel(w.downloadStage, stagePath) //nolint:errcheck // Within guarantees a relative path
		final = filepath.Join(w.downloadDir, rel)
	}
	if rel, err := filepath.Rel(w.workDir, final); err == nil && !strings.HasPrefix(rel, "..") {
		final = rel
	}
	return filepath.ToSlash(final)
}

// Excluded reports whether a directory met while walking the source must be
// skipped: the staging root and the output directories when they are
// nested in the source.
func (w *Workspace) Excluded(dir string) bool {
	dir = filepath.Clean(dir)
	if dir == w.sourceDir {
		return false
	}
	if dir == w.root || dir == w.downloadDir {
		return true
	}
	return dir == w.replacedDir && w.replacedDir != w.sourceDir
}

// Promote moves both staging trees into place. Prior output directories are
// set aside under the staging root first and restored if any later move
// fails, so the outputs end up either fully promoted or as they were.
//
// When the replaced directory is the source directory itself, the rewritten
// files are copied over the source as the last step; the files they
// overwrite are backed up and copied back on failure.
func (w *Workspace) Promote() error {
	overlay := w.replacedDir == w.sourceDir
	swaps := make([]swap, 0, 2)
	if !overlay {
		swaps = append(swaps, swap{stage: w.replaceStage, dst: w.replacedDir, prior: filepath.Join(w.root, "prior-replace")})
	}
	swaps = append(swaps, swap{stage: w.downloadStage, dst: w.downloadDir, prior: filepath.Join(w.root, "prior-download")})

	done := make([]swap, 0, len(swaps))
	rollback := func(cause error) error {
		for i := len(done) - 1; i >= 0; i-- {
			if err := done[i].restore(); err != nil {
				w.logger.Error("failed to restore output", "dir", done[i].dst, "error", err)
			}
		}
		return fmt.Errorf("%w: %w", ErrPromote, cause)
	}

	for _, sw := range swaps {
		touched, err := sw.apply()
		if touched {
			done = append(done, sw)
		}
		if err != nil {
			return rollback(err)
		}
	}

	if overlay {
		backup := filepath.Join(w.root, "prior-source")
		if err := backupOverlay(w.replaceStage, w.replacedDir, backup); err != nil {
			return rollback(err)
		}
		if err := copyTree(w.replaceStage, w.replacedDir); err != nil {
			if rerr := restoreOverlay(w.replaceStage, w.replacedDir, backup); rerr != nil {
				w.logger.Error("failed to restore source", "dir", w.replacedDir, "error", rerr)
			}
			return rollback(err)
		}
	}

	w.logger.Debug("staging promoted", "replaced", w.replacedDir, "download", w.downloadDir)
	return nil
}

// swap replaces dst with stage, keeping the prior dst at prior until the
// whole promotion has succeeded.
type swap struct {
	stage string
	dst   string
	prior string
}

// apply sets dst aside and moves stage into its place. touched reports
// whether dst may have changed and needs restore on rollback.
func (s swap) apply() (touched bool, err error) {
	if _, err := os.Lstat(s.dst); err == nil {
		if err := move(s.dst, s.prior); err != nil {
			_ = os.RemoveAll(s.prior) //nolint:errcheck // move error takes precedence
			return false, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, move(s.stage, s.dst)
}

// restore puts the prior dst back, or removes dst when there was none.
func (s swap) restore() error {
	if err := os.RemoveAll(s.dst); err != nil {
		return err
	}
	if _, err := os.Lstat(s.prior); err != nil {
		return nil
	}
	return move(s.prior, s.dst)
}

// backupOverlay copies every file of dst that a file of stage would
// overwrite into backup.
func backupOverlay(stage, dst, backup string) error {
	return walkFiles(stage, func(rel string, _ fs.FileMode) error {
		target := filepath.Join(dst, rel)
		info, err := os.Lstat(target)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		saved := filepath.Join(backup, rel)
		if err := os.MkdirAll(filepath.Dir(saved), 0o750); err != nil {
			return err
		}
		return copyFile(target, saved, info.Mode().Perm())
	})
}

// restoreOverlay undoes a partial copy of stage over dst using backup.
func restoreOverlay(stage, dst, backup string) error {
	return walkFiles(stage, func(rel string, _ fs.FileMode) error {
		target := filepath.Join(dst, rel)
		saved := filepath.Join(backup, rel)
		info, err := os.Lstat(saved)
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}
		if err != nil {
			return err
		}
		return copyFile(saved, target, info.Mode().Perm())
	})
}

// walkFiles calls fn with the relative path of every regular file below root.
func walkFiles(root string, fn func(rel string, perm fs.FileMode) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(rel, info.Mode().Perm())
	})
}

// Cleanup removes whatever is left of the staging root.
func (w *Workspace) Cleanup() error {
	if w.root == "" {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to remove staging: %w", err)
	}
	return nil
}

// move replaces dst with src, falling back to a copy when a rename is not
// possible (for example across devices).
func move(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// copyTree copies every file below src into dst, overwriting existing files.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // path comes from walking the staging tree
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec // target below the output directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() //nolint:errcheck // copy error takes precedence
		return err
	}
	return out.Close()
}

// Within reports whether path is dir or lies below it.
func Within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DirSize returns the total size of the regular files below dir.
func DirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
