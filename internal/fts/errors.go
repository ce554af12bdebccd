// Package fts provides an HTTP client for the file-transfer service API:
// the bearer-authenticated control plane (prefix/file listing, transfer
// intents, delete, move) and the pre-signed URI data plane used for the
// actual file bodies.
package fts

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, fts.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("fts: bad request")
	ErrUnauthorized = errors.New("fts: unauthorized")
	ErrForbidden    = errors.New("fts: forbidden")
	ErrNotFound     = errors.New("fts: not found")
	ErrConflict     = errors.New("fts: conflict")
	ErrThrottled    = errors.New("fts: throttled")
	ErrServerError  = errors.New("fts: server error")
)

// Response-shape and pre-flight sentinels.
var (
	// ErrUnexpectedShape means the API responded 2xx but the body did not
	// have the documented shape. Surfaced before any field access.
	ErrUnexpectedShape = errors.New("fts: unexpected response shape")

	// ErrIntentCountMismatch means an upload intent returned a different
	// number of pre-signed entries than files requested. The whole batch is
	// rejected; no per-file transfer starts.
	ErrIntentCountMismatch = errors.New("fts: intent entry count does not match requested files")

	// ErrSamePrefix rejects a move whose target prefix equals the source.
	ErrSamePrefix = errors.New("fts: target prefix must differ from current prefix")

	// ErrMissingTarget rejects a move with an empty target prefix or name.
	ErrMissingTarget = errors.New("fts: target prefix and file name are required")
)

// APIError wraps a sentinel with the failed operation, HTTP status, and the
// response body for diagnostics. Callers match the sentinel via errors.Is.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fts: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
