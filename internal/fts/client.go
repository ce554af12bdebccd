package fts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries     = 4
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "ftsctl/0.1"
)

// TokenSource provides bearer tokens for the selected customer. Defined at
// the consumer per Go convention "accept interfaces, return structs"; the
// token cache provides the real implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Logger is the subset of slog used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is an HTTP client for the file-transfer service. It handles
// request construction, bearer authentication, retry with exponential
// backoff, and error classification. Pre-signed URI transfers (uri.go)
// share the underlying http.Client but skip authentication.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     Logger

	// sleepFunc waits between retries. Tests override it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a transfer-service client. baseURL is the customer's
// host base URL; httpClient may be nil for http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// do executes an authenticated API request. body may be nil; non-nil bodies
// are sent as application/json. Token resolution happens before the first
// attempt so a token failure aborts the operation without touching the API.
// The caller must close the response body on success.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*http.Response, error) {
	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, tok, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fts: %s canceled: %w", op, ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					"op", op,
					"attempt", attempt+1,
					"backoff", backoff,
					"error", err.Error(),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("fts: %s canceled: %w", op, sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("fts: %s failed after %d retries: %w", op, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				"op", op,
				"status", resp.StatusCode,
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				"op", op,
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"backoff", backoff,
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("fts: %s canceled: %w", op, err)
			}

			attempt++

			continue
		}

		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single API request (no retry). Bodies are rebuilt from
// the byte slice per attempt so retries never send a drained reader.
func (c *Client) doOnce(ctx context.Context, method, url, tok string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff for a retryable response, honoring a
// numeric Retry-After on 429s.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
