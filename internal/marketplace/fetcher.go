package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of a marketplace response is read.
const maxBodyBytes = 8 << 20

// Fetcher retrieves the HTML of a marketplace search page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned http %d for %s", e.Code, e.URL)
}

// IsRetryable reports whether err is a transient upstream failure: a network
// error, a 429 or a 5xx. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// Network errors, connection resets and truncated bodies.
	return true
}

// newHTTPClient builds the client shared by page fetches and API calls.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: tr, Timeout: timeout}
}

// HTTPFetcher fetches pages with plain HTTP GETs and rotated browser headers.
type HTTPFetcher struct {
	client  *http.Client
	headers *HeaderRotator
}

// NewHTTPFetcher creates a fetcher. A nil headers rotator uses the default
// browser user-agent list.
func NewHTTPFetcher(client *http.Client, headers *HeaderRotator) *HTTPFetcher {
	if client == nil {
		client = newHTTPClient(0)
	}
	if headers == nil {
		headers = NewHeaderRotator(nil)
	}
	return &HTTPFetcher{client: client, headers: headers}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	f.headers.Apply(req)

	return readResponse(f.client, req)
}

// readResponse executes req and returns the body of a 2xx response.
func readResponse(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted()}
	}
	return body, nil
}
