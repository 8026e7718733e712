package simplevideo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DesktopUserAgent is sent with every source fetch.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPFetcher fetches source videos over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	timeout   *time.Duration
	userAgent string
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets the client used for fetches. A nil client keeps the
// default.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithFetchTimeout bounds a whole fetch, body included. Zero means no limit.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.timeout = &d
	}
}

// NewHTTPFetcher creates a fetcher that identifies as a desktop browser.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{userAgent: DesktopUserAgent}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout != nil {
		c := *f.client
		c.Timeout = *f.timeout
		f.client = &c
	}
	return f
}

// Fetch issues a GET for url. Transport failures and non-2xx responses are
// returned as *UpstreamError. The caller owns the returned body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchedSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "video/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &UpstreamError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return &FetchedSource{
		Body:        resp.Body,
		ContentType: contentType,
		Size:        resp.ContentLength,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
