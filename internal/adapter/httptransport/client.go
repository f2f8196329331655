package httptransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/inkpress/assetloader/internal/port"
)

// ClientConfig contains transport configuration
type ClientConfig struct {
	// BaseURL resolves relative request URLs and defines the origin that
	// receives credentials without an explicit WithCredentials
	BaseURL string

	// UserAgent is sent with every request when set
	UserAgent string

	// BearerToken is sent as Authorization on credentialed requests
	BearerToken string

	SkipTLSVerify         bool
	MaxIdleConnsPerHost   int
	ResponseHeaderTimeout time.Duration

	// RequestTimeout bounds a whole request including the body; 0 means none
	RequestTimeout time.Duration

	// Jar stores cookies for credentialed requests; a fresh jar when nil
	Jar http.CookieJar
}

// Client is a net/http based port.Transport
type Client struct {
	config       ClientConfig
	base         *url.URL
	credentialed *http.Client
	anonymous    *http.Client
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// NewClient creates a new transport client
func NewClient(cfg *ClientConfig) (*Client, error) {
	var c ClientConfig
	if cfg != nil {
		c = *cfg
	}

	var base *url.URL
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base url must be absolute: %s", c.BaseURL)
		}
		base = u
	}

	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = 30 * time.Second
	}
	if c.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.Jar = jar
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.SkipTLSVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,

		// Transparent gzip would hide Content-Length and break byte offsets
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
	}

	return &Client{
		config: c,
		base:   base,
		credentialed: &http.Client{
			Transport: transport,
			Jar:       c.Jar,
			Timeout:   c.RequestTimeout,
		},
		anonymous: &http.Client{
			Transport: transport,
			Timeout:   c.RequestTimeout,
		},
	}, nil
}

// Do sends the request and reads the whole body
func (c *Client) Do(ctx context.Context, req *port.Request) (*port.Response, error) {
	target, err := c.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	client := c.anonymous
	if req.WithCredentials || c.sameOrigin(target) {
		client = c.credentialed
		if c.config.BearerToken != "" && httpReq.Header.Get("Authorization") == "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &port.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// resolve turns a possibly relative URL into an absolute one
func (c *Client) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.base == nil {
		return nil, fmt.Errorf("relative url %q without base url", raw)
	}
	return c.base.ResolveReference(u), nil
}

// sameOrigin reports whether u shares scheme and host with the base URL
func (c *Client) sameOrigin(u *url.URL) bool {
	if c.base == nil {
		return false
	}
	return u.Scheme == c.base.Scheme && u.Host == c.base.Host
}
