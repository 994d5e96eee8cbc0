package grid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to a grid service over its JSON range API:
//
//	GET  {base}/ranges/{range}        -> {"rows": [[...], ...]}
//	POST {base}/ranges/{range}/clear
//	PUT  {base}/ranges/{range}        <- {"rows": [[...], ...]}
//
// Authentication is a bearer token supplied per request by the injected
// token source, so callers can plug in static keys or refreshing
// credentials without the client knowing the difference.
type HTTPClient struct {
	baseURL string
	token   func(ctx context.Context) (string, error)
	http    *http.Client
}

// HTTPConfig holds construction options for HTTPClient.
type HTTPConfig struct {
	// BaseURL is the service root, without trailing slash.
	BaseURL string

	// Token returns the bearer token for one request.
	Token func(ctx context.Context) (string, error)

	// Timeout bounds each HTTP call (default: 30s).
	Timeout time.Duration
}

// NewHTTPClient creates a replica client for the given service.
func NewHTTPClient(config HTTPConfig) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("token source is required")
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: config.BaseURL,
		token:   config.Token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// StaticToken returns a token source that always yields the given token.
func StaticToken(token string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

type rowsPayload struct {
	Rows [][]string `json:"rows"`
}

// FetchRange implements Client.FetchRange.
func (c *HTTPClient) FetchRange(ctx context.Context, rng string) ([][]string, error) {
	body, err := c.do(ctx, http.MethodGet, c.rangeURL(rng), nil)
	if err != nil {
		return nil, &ReadError{Range: rng, Err: err}
	}

	var payload rowsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ReadError{Range: rng, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return payload.Rows, nil
}

// ClearRange implements Client.ClearRange.
func (c *HTTPClient) ClearRange(ctx context.Context, rng string) error {
	if _, err := c.do(ctx, http.MethodPost, c.rangeURL(rng)+"/clear", nil); err != nil {
		return &WriteError{Range: rng, Err: err}
	}
	return nil
}

// WriteRange implements Client.WriteRange.
func (c *HTTPClient) WriteRange(ctx context.Context, rng string, rows [][]string) error {
	body, err := json.Marshal(rowsPayload{Rows: rows})
	if err != nil {
		return &WriteError{Range: rng, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}
	if _, err := c.do(ctx, http.MethodPut, c.rangeURL(rng), body); err != nil {
		return &WriteError{Range: rng, Err: err}
	}
	return nil
}

func (c *HTTPClient) rangeURL(rng string) string {
	return fmt.Sprintf("%s/ranges/%s", c.baseURL, url.PathEscape(rng))
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
