package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientHeaders(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer server.Close()

	client, err := NewHTTPClient(ClientOptions{
		Timeout:   5 * time.Second,
		UserAgent: "originlink-test",
		Headers:   map[string]string{"Authorization": "Bearer secret"},
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "x.js")
	require.NoError(t, NewHTTPFetcher(client).FetchToFile(context.Background(), server.URL+"/x.js", dest))

	got := <-headers
	assert.Equal(t, "originlink-test", got.Get("User-Agent"))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestHTTPFetcherStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "x.js")
	err := NewHTTPFetcher(server.Client()).FetchToFile(context.Background(), server.URL+"/x.js", dest)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.NoFileExists(t, dest)
}

func TestNewHTTPClientProxy(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient(ClientOptions{Proxy: "127.0.0.1:9050"})
	require.NoError(t, err)

	for _, addr := range []string{"127.0.0.1", ":9050", "host:0", "host:70000", "host:abc"} {
		_, err := NewHTTPClient(ClientOptions{Proxy: addr})
		require.ErrorIs(t, err, ErrInvalidProxyAddress, addr)
	}
}
