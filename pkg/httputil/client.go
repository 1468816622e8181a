package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/marginalia/pkg/buildinfo"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/observability"
)

// DefaultMaxBytes caps response bodies read by [Client.Fetch].
const DefaultMaxBytes = 32 << 20

// Client fetches URLs with retries.
type Client struct {
	HTTP     *http.Client
	Attempts int
	Delay    time.Duration
	MaxBytes int64
}

// NewClient returns a client with a 30s timeout and three attempts.
func NewClient() *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		MaxBytes: DefaultMaxBytes,
	}
}

// Fetch GETs rawURL and returns at most MaxBytes of the body. Non-2xx
// responses are errors; 5xx and 429 are retried.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse url")
	}
	hooks := observability.HTTP()
	var body []byte
	err = Retry(ctx, c.Attempts, c.Delay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "marginalia/"+buildinfo.Version)

		start := time.Now()
		hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
		resp, err := c.HTTP.Do(req)
		if err != nil {
			hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "get %s", rawURL))
		}
		defer resp.Body.Close()
		hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errors.New(errors.ErrCodeNotFound, "get %s: %s", rawURL, resp.Status)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return Retryable(errors.New(errors.ErrCodeNetwork, "get %s: %s", rawURL, resp.Status))
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return errors.New(errors.ErrCodeNetwork, "get %s: %s", rawURL, resp.Status)
		}

		limit := c.MaxBytes
		if limit <= 0 {
			limit = DefaultMaxBytes
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return Retryable(fmt.Errorf("read %s: %w", rawURL, err))
		}
		body = data
		return nil
	})
	return body, err
}
