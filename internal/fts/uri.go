package fts

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// PutURI streams size bytes from r to a pre-signed upload URI. The URI
// carries its own authorization, so no Bearer token is attached — and the
// URI itself is never logged. Zero-length files send an explicit
// Content-Length of 0; storage backends reject chunked empty bodies.
func (c *Client) PutURI(ctx context.Context, uri string, r io.Reader, size int64) error {
	body := r
	if size == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, body)
	if err != nil {
		return fmt.Errorf("fts: building upload request: %w", err)
	}

	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fts: upload: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("fts: draining upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Op:         "put",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	return nil
}

// GetURI streams the content behind a pre-signed download URI to w and
// returns the number of bytes written. As with PutURI, the URI is its own
// credential and never appears in logs.
func (c *Client) GetURI(ctx context.Context, uri string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("fts: building download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fts: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused; the status is the error.
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &APIError{
			Op:         "get",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("fts: streaming download: %w", err)
	}

	return n, nil
}
