package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultUserAgent = "signally/1.0 (rotating display; github.com/pders01/signally)"
	maxBodyBytes     = 1 << 20
)

// Client performs the HTTP requests shared by all providers.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a client. The per-request deadline comes from the
// caller's context; timeout is an upper bound for the transport.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP error: %d (retry after %s)", e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP error: %d", e.Code)
}

// Get issues a GET and returns the body. Failures are FetchErrors tagged
// with id.
func (c *Client) Get(ctx context.Context, id, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewFetchError(id, KindNetwork, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewFetchError(id, KindNetwork, fmt.Errorf("fetching %s: %w", id, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, NewFetchError(id, KindStatus, &StatusError{
			Code:       resp.StatusCode,
			RetryAfter: retryAfter(resp),
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewFetchError(id, KindNetwork, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

// GetJSON issues a GET and decodes the JSON body into dest.
func (c *Client) GetJSON(ctx context.Context, id, url string, headers map[string]string, dest any) error {
	body, err := c.Get(ctx, id, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return NewFetchError(id, KindMalformed, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
