// Package http builds the HTTP clients used by the API adapter: a standard
// request client and a streaming client for SSE and blob downloads.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/canopy-fm/canopy/internal/config"
)

// CreateStreamingClient creates an HTTP client suitable for long-lived
// connections: SSE subscriptions and file download/transfer bodies. It
// shares the proxy configuration with the request client but clears the
// overall timeout; callers bound each operation with a context instead.
func CreateStreamingClient(cfg *config.Config) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	client.Timeout = 0

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM mode wraps the transport in a Negotiator; the base transport
		// settings still apply, nothing further to tune.
		return client, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	// Runtime toggle for HTTP/1.1, useful when a middlebox mishandles
	// HTTP/2 streams.
	if os.Getenv("CANOPY_DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	// Proxies often break HTTP/2 multiplexing mid-stream; prefer HTTP/1.1
	// whenever a proxy is active.
	if proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	return client, nil
}

func proxyActive(cfg *config.Config) bool {
	if cfg == nil {
		return envProxySet()
	}
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return envProxySet()
	default:
		return true
	}
}

func envProxySet() bool {
	return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
}
