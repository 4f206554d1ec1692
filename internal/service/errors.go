package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingURL is returned when the request carries no target URL.
	ErrMissingURL = errors.New("missing url parameter: use ?url=VIDEO_LINK")
	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrHostNotAllowed is returned when the target host is not allowlisted.
	ErrHostNotAllowed = errors.New("target host is not allowed")
	// ErrMethodNotAllowed is returned for methods other than GET and HEAD.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// FetchError wraps a transport-level failure reaching the origin: DNS,
// connect, TLS, a refused redirect or cancellation. No response was received.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetch origin: " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// UpstreamStatusError reports that the origin answered with a non-success status.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("origin responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
