package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Request timeouts per endpoint class.
const (
	// ChainStateTimeout bounds the chain and state requests of a poll.
	ChainStateTimeout = 5 * time.Second

	// AuxTimeout bounds mempool, topology and stats requests.
	AuxTimeout = 4 * time.Second
)

// Client is a thin HTTP helper for talking to ledger nodes. Every request
// carries its own timeout context; errors never escalate beyond the caller.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a node HTTP client. The transport-level timeout is left
// open; per-request contexts enforce the bounds above.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
	}
}

// GetJSON issues a GET bounded by timeout and decodes the JSON body into out.
// Non-2xx statuses and malformed bodies are returned as errors.
func (c *Client) GetJSON(ctx context.Context, url string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// Post issues a POST bounded by timeout with an optional JSON body and
// returns the response status and body. A non-2xx status is not an error
// here; callers decide how to surface it.
func (c *Client) Post(ctx context.Context, url string, timeout time.Duration, body interface{}) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return resp.StatusCode, respBody, nil
}

// Get issues a GET bounded by timeout and reports success for 2xx statuses.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return resp.StatusCode, respBody, nil
}

// IsTimeout reports whether the error chain stems from an expired deadline
// rather than a refused or failed connection.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// http.Client wraps context expiry into a url.Error whose message keeps
	// the deadline text.
	return strings.Contains(err.Error(), "context deadline exceeded")
}
