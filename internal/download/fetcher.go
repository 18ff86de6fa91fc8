package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Fetcher writes the body of one URL to a local file.
// Implementations must honor ctx cancellation.
type Fetcher interface {
	FetchToFile(ctx context.Context, rawURL, dest string) error
}

// HTTPFetcher is the Fetcher backed by net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client selects a client with
// a 30 second timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client, _ = NewHTTPClient(ClientOptions{Timeout: DefaultTimeout}) //nolint:errcheck // no proxy, cannot fail
	}
	return &HTTPFetcher{client: client}
}

// FetchToFile downloads rawURL into dest, creating or truncating it.
// A non-2xx response is an error and leaves dest untouched.
func (f *HTTPFetcher) FetchToFile(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for keep-alive
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	out, err := os.Create(dest) //nolint:gosec // dest is derived from a cleaned URL path under the staging root
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close() //nolint:errcheck // copy error takes precedence
		return fmt.Errorf("failed to write body: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
