package stash

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithCacheRoot overrides the configured cache root directory.
func WithCacheRoot(root string) Option {
	return func(c *Client) {
		c.cfg.CacheRoot = root
	}
}

// WithLockTimeout bounds the wait for cache locks.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.cfg.LockTimeout = d
	}
}

// WithHubEndpoint overrides the model-hub endpoint.
func WithHubEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.cfg.HubEndpoint = endpoint
	}
}

// WithHubToken sets the model-hub access token.
func WithHubToken(token string) Option {
	return func(c *Client) {
		c.cfg.HubToken = token
	}
}

// WithHTTPClient sets the HTTP client used by the http and hub backends.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// ResolveOption configures a single resolve/open call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	forceRefresh bool
	checksum     string
	decompress   bool
}

// WithForceRefresh refetches even when the cached copy is current.
func WithForceRefresh() ResolveOption {
	return func(o *resolveOptions) {
		o.forceRefresh = true
	}
}

// WithChecksum verifies the resolved content against an expected hex SHA-256.
func WithChecksum(hexDigest string) ResolveOption {
	return func(o *resolveOptions) {
		o.checksum = hexDigest
	}
}

// WithDecompress transparently decompresses the content on Open, detected by
// filename suffix or magic bytes.
func WithDecompress() ResolveOption {
	return func(o *resolveOptions) {
		o.decompress = true
	}
}
