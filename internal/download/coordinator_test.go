package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/originlink/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAssetServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/lib/app.js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("console.log('app')")) //nolint:errcheck
	})
	mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("body{}")) //nolint:errcheck
	})
	mux.HandleFunc("/missing.js", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func assertNoPartFiles(t *testing.T, root string) {
	t.Helper()

	err := filepath.WalkDir(root, func(p string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		assert.False(t, strings.HasSuffix(p, partSuffix), "leftover partial file %s", p)
		return nil
	})
	require.NoError(t, err)
}

func TestCoordinatorFetch(t *testing.T) {
	t.Parallel()

	server := newAssetServer(t)
	root := filepath.Join(t.TempDir(), "assets")
	c := NewCoordinator(root, NewHTTPFetcher(server.Client()), WithLogger(quietLogger()))

	batch, err := c.Fetch(context.Background(), []string{
		server.URL + "/lib/app.js",
		server.URL + "/missing.js",
		server.URL + "/lib/app.js",
		server.URL + "/css/site.css",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Len())
	assert.Equal(t, 2, batch.SuccessCount())
	assert.Equal(t, 1, batch.FailCount())

	data, err := os.ReadFile(filepath.Join(root, "lib", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('app')", string(data))

	app, ok := batch.Outcome(server.URL + "/lib/app.js")
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), app.Size)
	assert.Len(t, app.Digest, 64)

	missing, ok := batch.Outcome(server.URL + "/missing.js")
	require.True(t, ok)
	assert.Equal(t, model.StatusFail, missing.Status)
	assert.Contains(t, missing.Error, "404")
	assert.NoFileExists(t, filepath.Join(root, "missing.js"))
	assert.Empty(t, missing.Digest)

	assertNoPartFiles(t, root)
}

func TestCoordinatorDestinationConflict(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	c := NewCoordinator(t.TempDir(), fetcher, WithLogger(quietLogger()))

	first, err := c.Fetch(context.Background(), []string{
		"https://a.example.com/lib/x.js",
		"https://b.example.com/lib/x.js",
	})
	require.NoError(t, err)

	winner, _ := first.Outcome("https://a.example.com/lib/x.js")
	assert.Equal(t, model.StatusSuccess, winner.Status)
	loser, _ := first.Outcome("https://b.example.com/lib/x.js")
	assert.Equal(t, model.StatusFail, loser.Status)
	assert.Contains(t, loser.Error, ErrDestinationConflict.Error())

	// Claims persist into later batches.
	second, err := c.Fetch(context.Background(), []string{"https://a.example.com/lib/x.js?v=2"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FailCount())
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestCoordinatorRemovesPartialFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := NewCoordinator(root, &fakeFetcher{fail: true}, WithLogger(quietLogger()))

	batch, err := c.Fetch(context.Background(), []string{"https://a.example.com/broken.js"})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.FailCount())
	assert.NoFileExists(t, filepath.Join(root, "broken.js"))
	assertNoPartFiles(t, root)
}

func TestCoordinatorConcurrencyLimit(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	c := NewCoordinator(t.TempDir(), fetcher, WithConcurrency(3), WithLogger(quietLogger()))

	urls := make([]string, 0, 12)
	for _, name := range strings.Split("a b c d e f g h i j k l", " ") {
		urls = append(urls, "https://a.example.com/"+name+".js")
	}

	batch, err := c.Fetch(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, 12, batch.SuccessCount())
	assert.LessOrEqual(t, fetcher.maxInFlight.Load(), int64(3))
}

func TestCoordinatorStagingRootFailure(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	c := NewCoordinator(filepath.Join(file, "assets"), &fakeFetcher{}, WithLogger(quietLogger()))
	_, err := c.Fetch(context.Background(), []string{"https://a.example.com/x.js"})
	require.ErrorIs(t, err, ErrStagingRoot)
}

func TestCoordinatorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCoordinator(t.TempDir(), &fakeFetcher{}, WithLogger(quietLogger()))
	batch, err := c.Fetch(ctx, []string{"https://a.example.com/x.js"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, batch.FailCount())
}

func TestDestination(t *testing.T) {
	t.Parallel()

	root := filepath.Join("staging", "assets")
	c := NewCoordinator(root, &fakeFetcher{})

	tests := []struct {
		url  string
		want string
	}{
		{"https://a.com/lib/x.js", filepath.Join(root, "lib", "x.js")},
		{"https://a.com/lib/x.js?v=1#top", filepath.Join(root, "lib", "x.js")},
		{"https://a.com/../../etc/passwd", filepath.Join(root, "etc", "passwd")},
		{"https://a.com", filepath.Join(root, "index.html")},
		{"https://a.com/docs/", filepath.Join(root, "docs", "index.html")},
		{"https://a.com/a%20b.js", filepath.Join(root, "a b.js")},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			got, err := c.Destination(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := c.Destination("ftp://a.com/x.js")
	require.ErrorIs(t, err, ErrUnsupportedURL)
	_, err = c.Destination("/local/x.js")
	require.ErrorIs(t, err, ErrUnsupportedURL)
}

// fakeFetcher writes a fixed body, optionally failing after a partial write.
type fakeFetcher struct {
	fail  bool
	delay time.Duration

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeFetcher) FetchToFile(ctx context.Context, _ string, dest string) error {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := os.WriteFile(dest, []byte("partial"), 0o600); err != nil {
		return err
	}
	if f.fail {
		return errors.New("connection reset")
	}
	return nil
}

func TestFileDigest(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(p, nil, 0o600))

	size, digest, err := fileDigest(p)
	require.NoError(t, err)
	assert.Zero(t, size)
	// SHA3-256 of the empty input.
	assert.Equal(t, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a", digest)
}
