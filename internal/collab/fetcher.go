package collab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPFetcher retrieves target content over plain HTTP(S). It does not retry;
// retry policy belongs to the caller.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher constructs a fetcher. Generation can take tens of seconds,
// so the default timeout is deliberately generous.
func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch performs a GET against the target and returns the body. Any
// non-success status is a transport error.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "vizor/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request target: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: target returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
