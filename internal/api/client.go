// Package api implements the HTTP+JSON transport shared by the prediction
// and metrics clients.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// RequestIDHeader carries a per-request id the backend echoes in its logs.
const RequestIDHeader = "X-Request-Id"

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues JSON requests against one backend.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a Client for the given base URL.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: baseURL, timeout: timeout, httpClient: hc}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Probe issues a GET and reports an error unless the status is 2xx.
func (c *Client) Probe(ctx context.Context, path string, timeout time.Duration) error {
	return c.DoJSON(ctx, timeout, http.MethodGet, path, nil, nil)
}

// Get decodes a GET response into out.
func (c *Client) Get(ctx context.Context, timeout time.Duration, path string, out any) error {
	return c.DoJSON(ctx, timeout, http.MethodGet, path, nil, out)
}

// Post sends body and decodes the response into out.
func (c *Client) Post(ctx context.Context, timeout time.Duration, path string, body, out any) error {
	return c.DoJSON(ctx, timeout, http.MethodPost, path, body, out)
}

// Put sends body and decodes the response into out.
func (c *Client) Put(ctx context.Context, timeout time.Duration, path string, body, out any) error {
	return c.DoJSON(ctx, timeout, http.MethodPut, path, body, out)
}

// DoJSON performs one request. A zero timeout uses the client default.
// Non-2xx responses return *HTTPError. A nil out discards the body.
func (c *Client) DoJSON(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		return fmt.Errorf("failed to read response: %w", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}
