// Package fetcher downloads upstream documents politely: a minimum interval
// between requests, bounded retries on throttling and server errors, and
// conditional GET.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validators are the conditional-GET tokens of a previous response.
type Validators struct {
	ETag         string
	LastModified string
}

// Response is a completed fetch. Body is empty when NotModified is set.
type Response struct {
	StatusCode  int
	Body        []byte
	Validators  Validators
	NotModified bool
}

// StatusError is returned for a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Options tune a Client. Zero values select the defaults.
type Options struct {
	UserAgent   string
	MinInterval time.Duration
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
}

// Client fetches URLs with rate limiting and retries.
type Client struct {
	client  HTTPClient
	limiter *rate.Limiter
	opts    Options
}

// New creates a Client. MinInterval of zero disables the rate floor;
// a negative MaxRetries disables retries.
func New(client HTTPClient, opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = "NewsDigestBot/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 800 * time.Millisecond
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Client{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// Get downloads url. Throttling (429), server errors (5xx) and transport
// errors are retried with exponential backoff; other statuses fail at once
// with a *StatusError. A 304 answer yields NotModified. Validators missing
// from the answer are carried over from v.
func (c *Client) Get(ctx context.Context, url string, v Validators) (*Response, error) {
	var out *Response
	retries := uint64(max(c.opts.MaxRetries, 0))
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(c.opts.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.do(ctx, url, v)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, url string, v Validators) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("http get: %w", err)
		}
		return nil, retry.RetryableError(fmt.Errorf("http get: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	got := Validators{
		ETag:         firstNonEmpty(resp.Header.Get("ETag"), v.ETag),
		LastModified: firstNonEmpty(resp.Header.Get("Last-Modified"), v.LastModified),
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Response{StatusCode: resp.StatusCode, Validators: got, NotModified: true}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.RetryableError(&StatusError{StatusCode: resp.StatusCode, URL: url})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read body: %w", err))
	}
	return &Response{StatusCode: resp.StatusCode, Body: body, Validators: got}, nil
}

// GetJSON downloads url unconditionally and decodes the body into dst.
func (c *Client) GetJSON(ctx context.Context, url string, dst any) error {
	resp, err := c.Get(ctx, url, Validators{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// ParseFeed parses an RSS or Atom document.
func ParseFeed(body []byte) (*gofeed.Feed, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
