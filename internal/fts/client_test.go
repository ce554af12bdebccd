package fts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

type failingToken struct{ err error }

func (t failingToken) Token(_ context.Context) (string, error) {
	return "", t.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient returns a client pointed at srv with retry sleeps disabled.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := NewClient(srv.URL, srv.Client(), staticToken("test-token"), discardLogger())
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestDoSetsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.do(context.Background(), "test", http.MethodGet, "/listprefixes", nil)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.do(context.Background(), "test", http.MethodGet, "/listprefixes", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "no such prefix", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.do(context.Background(), "test", http.MethodGet, "/listfiles", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestDoClassifiesStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"conflict", http.StatusConflict, ErrConflict},
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"server error", http.StatusInternalServerError, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv)

			_, err := c.do(context.Background(), "test", http.MethodGet, "/", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.do(context.Background(), "test", http.MethodGet, "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, maxRetries+1, calls)
}

func TestDoTokenFailureSkipsNetwork(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	tokenErr := errors.New("credentials incomplete")

	c := NewClient(srv.URL, srv.Client(), failingToken{err: tokenErr}, discardLogger())

	_, err := c.do(context.Background(), "test", http.MethodGet, "/", nil)
	assert.ErrorIs(t, err, tokenErr)
	assert.Zero(t, calls, "no request should reach the API without a token")
}

func TestRetryBackoffHonorsRetryAfter(t *testing.T) {
	c := NewClient("http://example.invalid", nil, staticToken(""), discardLogger())

	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"7"}},
	}
	assert.Equal(t, 7*time.Second, c.retryBackoff(resp, 0))

	// Without the header, backoff grows with the attempt but stays capped.
	resp = &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}
	for attempt := range maxRetries + 1 {
		d := c.retryBackoff(resp, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, maxBackoff+time.Duration(float64(maxBackoff)*jitterFraction))
	}
}
