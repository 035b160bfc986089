// Package fetch issues single timed requests to the controller API and
// classifies what went wrong when they fail.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client is a minimal controller REST client. It never retries.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient constructs a client for the controller at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("fetch: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("fetch: invalid base url: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the controller base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL for path and query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches path and returns the JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.URL(path, query), nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &Failure{Kind: KindDecode, Status: status, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// Post sends body as JSON to path. Only the status matters; the response
// body is ignored.
func (c *Client) Post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("fetch: encode body: %w", err)
	}
	_, _, err = c.do(ctx, http.MethodPost, c.URL(path, nil), payload)
	return err
}

// do performs one request and returns the status and body of a 2xx JSON
// response.
func (c *Client) do(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &Failure{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &Failure{Kind: KindNetwork, Err: fmt.Errorf("%s %s: %w", method, target, err)}
	}
	defer resp.Body.Close()

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return resp.StatusCode, nil, &Failure{
			Kind:   KindTunnel,
			Status: resp.StatusCode,
			Hint:   htmlTunnelHint,
			Err:    errors.New("received HTML instead of JSON"),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &Failure{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, classifyBody(resp.StatusCode, string(body))
	}
	return resp.StatusCode, body, nil
}
