package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warp/policy-history/history"
)

// maxFeedBytes caps how much of a feed response is read.
const maxFeedBytes = 32 << 20

// Client fetches the event feed over HTTP.
type Client struct {
	URL  string
	HTTP *http.Client
}

// NewClient returns a client with the given request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{URL: url, HTTP: &http.Client{Timeout: timeout}}
}

// Events fetches and decodes the feed.
func (c *Client) Events(ctx context.Context) ([]history.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return Decode(body)
}

// StatusError is returned when the feed answers with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch feed: unexpected status %d", e.StatusCode)
}
