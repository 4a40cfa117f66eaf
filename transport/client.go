// Package transport provides the retrying HTTP client used to reach embedding
// and chat endpoints and to fetch documents by URL.
//
// The client retries 429, 502, 503 and 524 responses with exponential backoff
// plus jitter, honoring Retry-After when the server sends one. Failures are
// reported as ErrTimeout, ErrNetwork or *APIError so callers can tell them apart.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is the retry budget for retryable statuses.
	DefaultMaxRetries = 3

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultBaseDelay is the first backoff delay.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps backoff and Retry-After waits.
	DefaultMaxDelay = 30 * time.Second

	// maxErrorBody bounds how much of an error body is kept in APIError.
	maxErrorBody = 2048
)

// StatusOriginTimeout is Cloudflare's "a timeout occurred" status.
const StatusOriginTimeout = 524

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, StatusOriginTimeout:
		return true
	}
	return false
}

// Doer is the subset of *http.Client the retrying client wraps.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a retrying, rate-limited HTTP client. It is safe for concurrent use.
type Client struct {
	doer       Doer
	maxRetries int
	timeout    time.Duration
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	retryAt time.Time
}

var _ Doer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the underlying HTTP client.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithMaxRetries sets the retry budget. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout bounds each attempt. Zero disables the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithBackoff sets the first backoff delay and the cap on any single wait.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.baseDelay = base
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithRateLimit applies a token bucket of rps requests per second.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a retrying client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		doer:       http.DefaultClient,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		logger:     slog.Default().With("component", "transport"),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req, retrying retryable statuses. A 2xx response is returned with
// its body open; any other status is consumed and returned as *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       readExcerpt(resp.Body),
			Attempts:   attempt + 1,
		}
		resp.Body.Close()

		if !retryableStatus(resp.StatusCode) || attempt >= c.maxRetries {
			return nil, apiErr
		}

		delay := c.backoff(attempt)
		if hint, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			delay = min(hint, c.maxDelay)
			if resp.StatusCode == http.StatusTooManyRequests {
				c.holdUntil(time.Now().Add(delay))
			}
		}
		c.logger.Warn("retrying request",
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs one round trip under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	r := req.Clone(attemptCtx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		r.Body = body
	}

	resp, err := c.doer.Do(r)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Request POSTs payload as JSON to endpoint and decodes the JSON response into out.
// A nil out discards the body.
func (c *Client) Request(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Get fetches url and returns the body and its Content-Type.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, "", fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// wait honors any server-imposed hold and the token bucket.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	retryAt := c.retryAt
	c.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		if err := c.sleep(ctx, d); err != nil {
			return err
		}
	}
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) holdUntil(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.retryAt) {
		c.retryAt = t
	}
}

// backoff returns base*2^attempt capped at maxDelay, plus up to 50% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay << min(attempt, 20)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return min(d+jitter, c.maxDelay)
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0), true
	}
	return 0, false
}

// bufferBody makes the request body replayable across attempts.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func readExcerpt(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(bytes.TrimSpace(data))
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancelBody releases the attempt context once the caller closes the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
