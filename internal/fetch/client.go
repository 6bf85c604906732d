// Package fetch retrieves recitation audio units from the remote CDN.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the recitation CDN the unit keys are resolved against.
const DefaultBaseURL = "https://raw.githubusercontent.com/brmhmh/yacineee/refs/heads/upup/"

// unitExt is the extension appended to each unit key.
const unitExt = ".mp3"

// Static errors for fetch operations.
var (
	// ErrUnitKeyRequired is returned when an empty unit key is requested.
	ErrUnitKeyRequired = errors.New("fetch: unit key is required")
	// ErrRequestFailed is returned when the request could not be completed.
	ErrRequestFailed = errors.New("fetch: request failed")
	// ErrUnexpectedStatus is returned when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("fetch: unexpected status")
)

// Fetcher retrieves the raw bytes of a unit by key.
type Fetcher interface {
	Fetch(ctx context.Context, unitKey string) ([]byte, error)
}

// FetchError describes a failed remote fetch. Err is one of the package
// sentinels wrapped around the underlying cause.
type FetchError struct {
	UnitKey    string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.UnitKey, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.UnitKey, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPClient is the HTTP implementation of Fetcher. It performs exactly one
// request per call; retry policy belongs to the caller.
type HTTPClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets the base URL unit keys are appended to.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		if d > 0 {
			hc.httpClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) ClientOption {
	return func(hc *HTTPClient) {
		hc.userAgent = ua
	}
}

// NewClient creates a new HTTP fetcher.
func NewClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    DefaultBaseURL,
		userAgent:  "recitation-api/1.0",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// URL returns the deterministic location of a unit: base + key + ".mp3".
func (c *HTTPClient) URL(unitKey string) string {
	return URL(c.baseURL, unitKey)
}

// URL joins a base URL and unit key into the unit's remote location.
func URL(baseURL, unitKey string) string {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + unitKey + unitExt
}

// Fetch downloads a unit. Every failure is returned as a *FetchError.
func (c *HTTPClient) Fetch(ctx context.Context, unitKey string) ([]byte, error) {
	if unitKey == "" {
		return nil, ErrUnitKeyRequired
	}
	url := c.URL(unitKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{UnitKey: unitKey, URL: url, Err: fmt.Errorf("%w: create request: %w", ErrRequestFailed, err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{UnitKey: unitKey, URL: url, Err: fmt.Errorf("%w: %w", ErrRequestFailed, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{UnitKey: unitKey, URL: url, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{UnitKey: unitKey, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)}
	}
	return body, nil
}
