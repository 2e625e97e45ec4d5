// Package httpclient configures the HTTP client the command line tools use to
// call the places API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

type Option func(*http.Client, *http.Transport)

// WithTimeout bounds a whole request including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client, _ *http.Transport) { c.Timeout = d }
}

// WithIdleConnsPerHost sizes the keep-alive pool; load generation wants it to
// match its worker count.
func WithIdleConnsPerHost(n int) Option {
	return func(_ *http.Client, t *http.Transport) {
		t.MaxIdleConnsPerHost = n
		if t.MaxIdleConns < n {
			t.MaxIdleConns = n
		}
	}
}

// NewOutbound creates a new outbound http client
func NewOutbound(opts ...Option) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	c := &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
	for _, o := range opts {
		o(c, transport)
	}
	return c
}
