// Package upstream builds the HTTP client used to reach the dashboard backend
package upstream

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Options tunes the transport. Zero values fall back to the defaults below.
type Options struct {
	DialTimeout     time.Duration
	IdleConnTimeout time.Duration
	MaxIdlePerHost  int
}

func NewTransport(opts Options) (*http.Transport, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}
	if opts.MaxIdlePerHost <= 0 {
		opts.MaxIdlePerHost = 10
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: opts.MaxIdlePerHost,
		IdleConnTimeout:     opts.IdleConnTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// NewClient wraps NewTransport with a client-wide timeout; zero means none
func NewClient(timeout time.Duration, opts Options) (*http.Client, error) {
	tr, err := NewTransport(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}
