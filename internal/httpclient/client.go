// Package httpclient provides the HTTP client used to fetch configuration directories and content
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/globalconf-client/internal/versions"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

const (
	// DefaultTimeout is the default read timeout for configuration downloads
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize bounds a single directory or content file (100MB)
	DefaultMaxResponseSize int64 = 100 * 1024 * 1024
)

// ErrResponseTooLarge is returned when a response body exceeds the size limit
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// UserAgent identifies the client to configuration sources
func UserAgent() string {
	return "confclient/" + versions.GetVersionInfo().Version
}

// Client fetches configuration over HTTP
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Status performs an HTTP GET request and returns only the response status code
	Status(ctx context.Context, url string) (int, error)
}

// ClientOption configures a DefaultClient
type ClientOption func(*DefaultClient)

// WithMaxResponseSize overrides DefaultMaxResponseSize
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *DefaultClient) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// DefaultClient is the net/http backed Client. The read timeout bounds a whole exchange,
// including reading the body.
type DefaultClient struct {
	client    *http.Client
	maxSize   int64
	userAgent string
}

// NewDefaultClient creates a client with the given read timeout, DefaultTimeout when zero
func NewDefaultClient(timeout time.Duration, opts ...ClientOption) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:    &http.Client{Timeout: timeout},
		maxSize:   DefaultMaxResponseSize,
		userAgent: UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DefaultClient) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// Get returns the body of a 200 response. Any other status is an *HTTPError.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}
	if resp.ContentLength > c.maxSize {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrResponseTooLarge, resp.ContentLength, c.maxSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxSize)
	}
	return body, nil
}

// Status performs an HTTP GET request and discards the body
func (c *DefaultClient) Status(ctx context.Context, url string) (int, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
