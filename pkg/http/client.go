package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBody caps downloaded bodies; model artifacts stay well below it.
const DefaultMaxBody = 32 << 20

// ClientOption configures Client.
type ClientOption func(*Client)

// Client fetches small documents (model artifacts, registry indexes) over HTTP.
type Client struct {
	timeout   time.Duration
	userAgent string
	token     string
	maxBody   int64
	client    *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.Code, e.Body)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsPermanent reports whether err is a non-retryable HTTP status.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Temporary()
}

// NewClient creates a new HTTP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   30 * time.Second,
		userAgent: "iph-forecast",
		maxBody:   DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// GetBytes downloads url and returns the body.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: string(body)}
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", url, c.maxBody)
	}
	return body, nil
}

// WithTimeout sets client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithBearerToken authenticates every request.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}
