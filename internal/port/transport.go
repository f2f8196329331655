package port

import (
	"context"
	"net/http"
)

// Request describes one HTTP request issued by the loader
type Request struct {
	Method  string
	URL     string
	Headers map[string]string

	// WithCredentials attaches cookies and the configured authorization even
	// when the URL is not same-origin with the configured base URL
	WithCredentials bool
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK returns true for 2xx statuses
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs HTTP requests for the loader
type Transport interface {
	// Do sends the request and reads the whole response body.
	// An error means no usable response was received; any status is returned
	// as a Response.
	Do(ctx context.Context, req *Request) (*Response, error)
}
