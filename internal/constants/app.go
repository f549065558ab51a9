// Package constants defines shared tuning values for the canopy client.
package constants

import "time"

// HTTP client timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPRequestTimeout - overall timeout for plain REST calls.
	// Streaming connections (SSE, downloads) use a client without it.
	HTTPRequestTimeout = 60 * time.Second
)

// Retry policy for the REST client (transport level; the state layer never
// retries on its own).
const (
	RetryMax     = 4
	RetryWaitMin = 500 * time.Millisecond
	RetryWaitMax = 10 * time.Second
)

// State store tuning
const (
	// RevalidateDelay - debounce delay before a quiet background refetch.
	RevalidateDelay = 800 * time.Millisecond

	// MaxAncestorWalk bounds parent-chain walks over folder metadata so a
	// malformed or cyclic parent chain cannot loop forever.
	MaxAncestorWalk = 256

	// DefaultPageSize - listing page size when none is configured.
	DefaultPageSize = 10
)

// Upload limits
const (
	// MaxUploadSize - uploads above this are rejected client-side (2 GiB).
	MaxUploadSize = 2 * 1024 * 1024 * 1024

	// MaxNameLength - folder/file name length cap, matching the backend.
	MaxNameLength = 255
)

// SSE
const (
	// SSEBufferSize - per-subscription event channel buffer.
	SSEBufferSize = 64
)
