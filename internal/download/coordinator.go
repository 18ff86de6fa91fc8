package download

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/originlink/internal/model"
)

const (
	// DefaultConcurrency is the number of downloads in flight at once.
	DefaultConcurrency = 10

	// DefaultTimeout bounds a single download.
	DefaultTimeout = 30 * time.Second

	// partSuffix marks a file that is still being written.
	partSuffix = ".part"

	// indexFile is the file name used for URLs ending with a slash.
	indexFile = "index.html"
)

// Coordinator downloads batches of URLs into a staging root.
//
// Destination claims persist across batches: once a path under root
// belongs to a URL, any other URL mapping onto the same path fails with
// ErrDestinationConflict. This keeps "same path, different host" and "same
// path, different query" from silently overwriting each other.
type Coordinator struct {
	root        string
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger

	mu     sync.Mutex
	claims map[string]string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency sets the maximum number of concurrent downloads.
// Default is 10 if not specified.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCoordinator creates a Coordinator writing below root.
func NewCoordinator(root string, fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		root:        root,
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		claims:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the staging root.
func (c *Coordinator) Root() string {
	return c.root
}

// Destination maps rawURL onto a file path under root. The URL path is
// cleaned so it can never escape root; "/" and trailing slashes map to
// index.html.
func (c *Coordinator) Destination(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	p := u.Path
	dir := p == "" || strings.HasSuffix(p, "/")
	p = path.Clean("/" + p)
	if dir || p == "/" {
		p = path.Join(p, indexFile)
	}
	return filepath.Join(c.root, filepath.FromSlash(strings.TrimPrefix(p, "/"))), nil
}

// Fetch downloads urls and returns one outcome per distinct URL.
//
// Per-URL failures are recorded in the batch. The returned error is non-nil
// only when the staging root cannot be created or ctx is cancelled; in the
// latter case the batch still holds every outcome reached.
func (c *Coordinator) Fetch(ctx context.Context, urls []string) (*model.Batch, error) {
	if err := os.MkdirAll(c.root, 0o750); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrStagingRoot, c.root, err)
	}

	batch := model.NewBatch()
	jobs := c.plan(urls, batch)

	c.logger.Info("starting downloads",
		"total", len(jobs),
		"concurrency", c.concurrency,
	)
	startTime := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for _, j := range jobs {
		g.Go(func() error {
			outcome := model.Outcome{URL: j.url, Destination: j.dest}

			select {
			case <-ctx.Done():
				outcome.Status = model.StatusFail
				outcome.Error = ctx.Err().Error()
				batch.Add(outcome)
				return nil
			default:
			}

			size, digest, err := c.fetchOne(ctx, j.url, j.dest)
			if err != nil {
				outcome.Status = model.StatusFail
				outcome.Error = err.Error()
				c.logger.Warn("download failed", "url", j.url, "error", err)
			} else {
				outcome.Status = model.StatusSuccess
				outcome.Size = size
				outcome.Digest = digest
				c.logger.Debug("downloaded", "url", j.url, "destination", j.dest, "size", size)
			}
			batch.Add(outcome)

			// Failures are recorded in the batch, never returned to the group.
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	c.logger.Info("downloads complete",
		"success", batch.SuccessCount(),
		"fail", batch.FailCount(),
		"elapsed", time.Since(startTime),
	)

	if err := ctx.Err(); err != nil {
		return batch, err
	}
	return batch, nil
}

type job struct {
	url  string
	dest string
}

// plan de-duplicates urls and claims destinations in input order.
// URLs that cannot be claimed are recorded as failures right away.
func (c *Coordinator) plan(urls []string, batch *model.Batch) []job {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(urls))
	jobs := make([]job, 0, len(urls))

	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		dest, err := c.Destination(u)
		if err != nil {
			batch.Add(model.Outcome{URL: u, Status: model.StatusFail, Error: err.Error()})
			continue
		}
		if owner, claimed := c.claims[dest]; claimed && owner != u {
			err := fmt.Errorf("%w: %s (owned by %s)", ErrDestinationConflict, dest, owner)
			c.logger.Warn("destination conflict", "url", u, "destination", dest, "owner", owner)
			batch.Add(model.Outcome{URL: u, Destination: dest, Status: model.StatusFail, Error: err.Error()})
			continue
		}
		c.claims[dest] = u
		jobs = append(jobs, job{url: u, dest: dest})
	}
	return jobs
}

// fetchOne downloads into dest.part and renames on success. It returns the
// size and SHA3-256 digest of the body.
// The partial file is removed on every failure path.
func (c *Coordinator) fetchOne(ctx context.Context, rawURL, dest string) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, "", fmt.Errorf("failed to create directory: %w", err)
	}

	part := dest + partSuffix
	if err := c.fetcher.FetchToFile(ctx, rawURL, part); err != nil {
		c.removePart(part)
		return 0, "", err
	}

	size, digest, err := fileDigest(part)
	if err != nil {
		c.removePart(part)
		return 0, "", fmt.Errorf("failed to read download: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		c.removePart(part)
		return 0, "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return size, digest, nil
}

// fileDigest returns the size and hex SHA3-256 of the file at p.
func fileDigest(p string) (int64, string, error) {
	f, err := os.Open(p) //nolint:gosec // p is a staging path built by Destination
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha3.New256()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Coordinator) removePart(part string) {
	if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Debug("failed to remove partial download", "path", part, "error", err)
	}
}
