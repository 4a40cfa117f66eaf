package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client whose sleeps are recorded instead of slept.
func newTestClient(opts ...Option) (*Client, *[]time.Duration) {
	c := NewClient(opts...)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestClientRetriesRetryableStatuses(t *testing.T) {
	for _, status := range []int{429, 502, 503, 524} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, `{"input":"hi"}`, string(body), "body replayed on every attempt")
				if calls.Add(1) < 3 {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			c, slept := newTestClient(WithMaxRetries(3))
			var out struct{ OK bool }
			err := c.Request(context.Background(), srv.URL, map[string]string{"input": "hi"}, &out)
			require.NoError(t, err)
			assert.True(t, out.OK)
			assert.Equal(t, int32(3), calls.Load())
			assert.Len(t, *slept, 2)
		})
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	c, _ := newTestClient(WithMaxRetries(2))
	err := c.Request(context.Background(), srv.URL, struct{}{}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "overloaded", apiErr.Body)
	assert.Equal(t, 3, apiErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, slept := newTestClient()
	err := c.Request(context.Background(), srv.URL, struct{}{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.IsRetryable())
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *slept)
}

func TestClientHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, slept := newTestClient(WithBackoff(time.Millisecond, time.Minute))
	require.NoError(t, c.Request(context.Background(), srv.URL, struct{}{}, nil))
	require.NotEmpty(t, *slept)
	assert.Equal(t, 7*time.Second, (*slept)[0])
}

func TestClientTimeoutIsDistinct(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := newTestClient(WithTimeout(20 * time.Millisecond))
	err := c.Request(context.Background(), srv.URL, struct{}{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := newTestClient()
	err := c.Request(context.Background(), url, struct{}{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := NewClient()
	data, ct, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", ct)
}

func TestClientReplaysUnbufferedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient()
	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("payload")))
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(WithBackoff(time.Hour, time.Hour))
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.Request(ctx, srv.URL, struct{}{}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	d, ok := retryAfter("3", now)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	d, ok = retryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	_, ok = retryAfter("", now)
	assert.False(t, ok)
	_, ok = retryAfter("soon", now)
	assert.False(t, ok)
	_, ok = retryAfter("-1", now)
	assert.False(t, ok)
}

func TestBackoffBounds(t *testing.T) {
	c := NewClient(WithBackoff(100*time.Millisecond, time.Second))
	for attempt := range 10 {
		d := c.backoff(attempt)
		assert.GreaterOrEqual(t, d, min(100*time.Millisecond<<attempt, time.Second))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestRateLimit(t *testing.T) {
	c := NewClient(WithRateLimit(1000, 1))
	require.NotNil(t, c.limiter)
	assert.NoError(t, c.wait(context.Background()))

	c = NewClient(WithRateLimit(0, 0))
	assert.Nil(t, c.limiter)
}
