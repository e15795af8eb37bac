// Package fetcher is the shared HTTP transport of the provider adapters:
// per-host rate limiting, retries of transient failures, per-host circuit
// breakers and CSV body parsing.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sells-group/ticker-ingest/internal/resilience"
)

// Fetcher downloads provider payloads.
type Fetcher interface {
	// Download returns the body of a 2xx response. The caller closes it.
	Download(ctx context.Context, url string, opts ...RequestOption) (io.ReadCloser, error)

	// GetJSON decodes a 2xx JSON response into v.
	GetJSON(ctx context.Context, url string, v any, opts ...RequestOption) error
}

// RequestOption adjusts an outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithBearer sets a bearer token when token is non-empty.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
	// Body holds the start of the response body for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("http %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// statusErr wraps retryable statuses so the retry loop and the breaker see
// them as transient.
func statusErr(code int, url, body string) error {
	se := &StatusError{StatusCode: code, URL: url, Body: body}
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(se, code)
	}
	return se
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
