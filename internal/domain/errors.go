package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyURL         = errors.New("url must not be empty")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrCacheFull        = errors.New("asset cache is full")
)

// TransportError is returned when an HTTP request fails at the network level
// or answers with a status the caller cannot use.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

// Error returns the error message
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return "transport error"
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewStatusError creates a TransportError for an unusable response status
func NewStatusError(method, url string, status int) *TransportError {
	return &TransportError{Method: method, URL: url, StatusCode: status}
}

// NewNetworkError creates a TransportError for a request that got no response
func NewNetworkError(method, url string, err error) *TransportError {
	return &TransportError{Method: method, URL: url, Err: err}
}

// IsTransport returns true if err is or wraps a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by a TransportError, or 0
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// DecodeError is returned when a response body cannot be decoded into the
// requested content kind.
type DecodeError struct {
	Kind ContentKind
	URL  string
	Err  error
}

// Error returns the error message
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s from %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("decode %s from %s", e.Kind, e.URL)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new DecodeError
func NewDecodeError(kind ContentKind, url string, err error) *DecodeError {
	return &DecodeError{Kind: kind, URL: url, Err: err}
}

// IsDecode returns true if err is or wraps a DecodeError
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
