// Package stash gives callers one addressing scheme and file-handle
// abstraction over heterogeneous storage backends (local disk, http(s),
// S3-compatible object stores, model hubs), with a freshness-checked local
// cache, transparent decompression and nested archive-member access.
//
// Identifiers have the form
//
//	<scheme>://<location>[!<archive-member-path>[!<nested-member-path>...]]
//
// and a bare local path is accepted as-is.
package stash

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/pkg/errors"

	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/backend/httpfs"
	"github.com/skyline93/stash/internal/backend/hub"
	"github.com/skyline93/stash/internal/backend/local"
	"github.com/skyline93/stash/internal/backend/s3fs"
	"github.com/skyline93/stash/internal/cache"
	"github.com/skyline93/stash/internal/codec"
	"github.com/skyline93/stash/internal/config"
	"github.com/skyline93/stash/internal/resource"
)

// Entry describes one cached artifact, as reported by List.
type Entry = cache.Entry

// Client is the façade over the resource cache. It is safe for concurrent
// use; any number of clients and processes may share one cache root.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	manager    *cache.Manager
}

// New creates a client. Configuration is loaded from the config file and
// environment, then adjusted by opts.
func New(opts ...Option) (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	manager, err := cache.New(c.cfg.CacheRoot, c.dispatch, c.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	c.manager = manager
	return c, nil
}

// dispatch selects the backend driver for a scheme. The set is closed; a new
// scheme means a new case here, checked at compile time against the parser.
func (c *Client) dispatch(scheme resource.Scheme) (backend.Backend, error) {
	switch scheme {
	case resource.SchemeLocal:
		return local.New(), nil
	case resource.SchemeHTTP:
		return httpfs.New(c.httpClient), nil
	case resource.SchemeS3:
		return s3fs.New(), nil
	case resource.SchemeHub:
		return hub.New(c.cfg.HubEndpoint, c.cfg.HubToken, c.httpClient), nil
	}
	return nil, errors.Wrapf(resource.ErrUnsupportedScheme, "%v", scheme)
}

// CachedPath resolves an identifier to a local file path, fetching and
// caching it when needed. For identifiers with an archive-member chain the
// returned path is the extracted member.
func (c *Client) CachedPath(ctx context.Context, raw string, opts ...ResolveOption) (string, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	id, err := resource.Parse(raw)
	if err != nil {
		return "", err
	}

	basePath, err := c.manager.Resolve(ctx, id, cache.Options{
		ForceRefresh: o.forceRefresh,
		Checksum:     o.checksum,
	})
	if err != nil {
		return "", err
	}

	if len(id.Members) == 0 {
		return basePath, nil
	}
	return codec.ExtractMember(id, basePath, c.manager.ExtractRoot(id.Key()))
}

// Open resolves the identifier and opens the result for reading. With
// WithDecompress the stream is transparently decompressed.
func (c *Client) Open(ctx context.Context, raw string, opts ...ResolveOption) (io.ReadCloser, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	localPath, err := c.CachedPath(ctx, raw, opts...)
	if err != nil {
		return nil, err
	}
	if !o.decompress {
		return os.Open(localPath)
	}

	id, err := resource.Parse(raw)
	if err != nil {
		return nil, err
	}
	return codec.Open(localPath, logicalName(id))
}

// Create opens a write handle to the identifier's backend location. Content
// is staged locally and only committed to the backend by Commit (or Close);
// Discard, or an error, leaves the backend untouched.
func (c *Client) Create(ctx context.Context, raw string) (*cache.WriteHandle, error) {
	id, err := resource.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(id.Members) > 0 {
		return nil, errors.Errorf("cannot write into an archive member: %s", raw)
	}
	return c.manager.NewWriteHandle(ctx, id)
}

// Upload copies a local file to the identifier's backend location.
func (c *Client) Upload(ctx context.Context, localPath, raw string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	h, err := c.Create(ctx, raw)
	if err != nil {
		return err
	}
	if _, err := io.Copy(h, src); err != nil {
		_ = h.Discard()
		return err
	}
	return h.Commit()
}

// Download streams the resource directly to localPath, bypassing the cache.
// The destination appears atomically.
func (c *Client) Download(ctx context.Context, raw, localPath string) error {
	id, err := resource.Parse(raw)
	if err != nil {
		return err
	}
	if len(id.Members) > 0 {
		return errors.Errorf("cannot download an archive member directly: %s", raw)
	}

	be, err := c.dispatch(id.Scheme)
	if err != nil {
		return err
	}
	rd, err := be.Open(ctx, id.Location)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()

	return local.New().Store(ctx, localPath, rd)
}

// Exists reports whether the resource exists at the backend.
func (c *Client) Exists(ctx context.Context, raw string) (bool, error) {
	id, err := resource.Parse(raw)
	if err != nil {
		return false, err
	}
	be, err := c.dispatch(id.Scheme)
	if err != nil {
		return false, err
	}
	if _, err := be.Stat(ctx, id.Location); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the resource at the backend. The cache entry, if any, is
// left to expire through its freshness check.
func (c *Client) Delete(ctx context.Context, raw string) error {
	id, err := resource.Parse(raw)
	if err != nil {
		return err
	}
	be, err := c.dispatch(id.Scheme)
	if err != nil {
		return err
	}
	return be.Delete(ctx, id.Location)
}

// List returns all cache entries, oldest first.
func (c *Client) List() ([]Entry, error) {
	return c.manager.List()
}

// Remove evicts the cache entry for the identifier.
func (c *Client) Remove(raw string) error {
	id, err := resource.Parse(raw)
	if err != nil {
		return err
	}
	return c.manager.Remove(id)
}

// RemoveAll clears the whole cache.
func (c *Client) RemoveAll() error {
	return c.manager.RemoveAll()
}

// Update force-refreshes the cached copy of the identifier.
func (c *Client) Update(ctx context.Context, raw string) error {
	id, err := resource.Parse(raw)
	if err != nil {
		return err
	}
	return c.manager.Update(ctx, id)
}

// UpdateAll force-refreshes every cache entry exactly once.
func (c *Client) UpdateAll(ctx context.Context) error {
	return c.manager.UpdateAll(ctx)
}

// SweepOrphans removes data files not referenced by the index and leftover
// staging files from interrupted downloads.
func (c *Client) SweepOrphans() (int, error) {
	return c.manager.SweepOrphans()
}

// CacheRoot returns the cache root directory in use.
func (c *Client) CacheRoot() string {
	return c.manager.Root()
}

// logicalName is the filename whose suffix drives format detection: the last
// member of the chain, or the base location.
func logicalName(id resource.Identifier) string {
	if n := len(id.Members); n > 0 {
		return path.Base(id.Members[n-1])
	}
	return path.Base(id.Location)
}
