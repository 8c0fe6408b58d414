// Package delivery wraps outbound HTTP calls with the retry, backoff and
// rate-limit discipline shared by the messaging gateway sender and the
// automation notifier.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrExhausted is returned when every attempt in the retry budget failed.
// Callers treat it as a delivery failure, never as a process-fatal error.
var ErrExhausted = errors.New("retry budget exhausted")

const (
	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 10 * time.Second
)

var defaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Result is the terminal response of a delivery attempt sequence.
type Result struct {
	StatusCode int
	Body       []byte
}

type Client struct {
	http    *http.Client
	backoff []time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger

	// sleep is swapped out in tests to observe delays without waiting.
	sleep func(time.Duration)
	now   func() time.Time
}

type Option func(*Client)

// WithBackoff replaces the attempt schedule. One attempt is made per
// entry plus the initial try; the last delay repeats if shorter than
// the attempt count.
func WithBackoff(delays []time.Duration) Option {
	return func(c *Client) { c.backoff = delays }
}

// WithRateLimit installs a client-side pacing limiter applied before
// every attempt.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTimeouts sets the connect and read timeouts. Connect is enforced by
// the dialer, read by the overall client deadline, so a stalled peer
// cannot hold a worker past the read timeout.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.http = newHTTPClient(connect, read)
	}
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	return &http.Client{
		Timeout: read,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			ResponseHeaderTimeout: read,
		},
	}
}

func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    newHTTPClient(defaultConnectTimeout, defaultReadTimeout),
		backoff: defaultBackoff,
		logger:  logger,
		sleep:   time.Sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxAttempts is the retry budget: one attempt per backoff slot.
func (c *Client) maxAttempts() int { return len(c.backoff) }

// PostJSON sends payload to url, retrying transient failures. Any 2xx is
// success. A 429 honours the server's Retry-After hint (seconds or HTTP
// date) in place of the backoff delay; the failed attempt still counts
// against the budget. Exhaustion returns an ErrExhausted-wrapped error.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		wait := c.backoff[min(attempt, len(c.backoff)-1)]

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		res, retryAfter, err := c.post(ctx, url, header, body)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("delivery aborted: %w", ctx.Err())
		}

		if retryAfter > 0 {
			// Server told us when to come back; that replaces the backoff.
			wait = retryAfter
			c.logger.Warn("rate limited", "url", url, "wait", wait)
		}

		if attempt < c.maxAttempts()-1 {
			c.sleep(wait)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, c.maxAttempts(), lastErr)
}

// post performs one attempt. retryAfter is non-zero only for rate-limit
// responses carrying a usable hint.
func (c *Client) post(ctx context.Context, url string, header http.Header, body []byte) (*Result, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Result{StatusCode: resp.StatusCode, Body: respBody}, 0, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		hint := c.parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, hint, fmt.Errorf("rate limited (status %d)", resp.StatusCode)
	}

	return nil, 0, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 256))
}

// parseRetryAfter converts a Retry-After header into a wait duration.
// The header is either a decimal number of seconds or an HTTP date.
// Unusable values yield zero, which falls back to the backoff schedule.
func (c *Client) parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := time.ParseDuration(value + "s"); err == nil && secs >= 0 {
		return secs
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(c.now()); d > 0 {
			return d
		}
	}
	c.logger.Warn("unparseable Retry-After header", "value", value)
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
