// Package backend defines the capability interface implemented by every
// storage driver. Drivers are a closed set selected once at parse time via
// resource.Scheme; dispatch is injected into the cache manager so tests can
// substitute spies.
package backend

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/skyline93/stash/internal/resource"
)

var (
	// ErrNotFound is returned by Stat and Open when the resource does not
	// exist at the backend.
	ErrNotFound = errors.New("resource not found")

	// ErrAuthentication is returned when credentials are missing or rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrReadOnly is returned by Store and Delete on backends that cannot
	// write (http, hub).
	ErrReadOnly = errors.New("backend is read-only")
)

// Info describes a remote resource as observed by Stat.
//
// Token is the freshness validator: an entity tag or equivalent for networked
// backends, modification time and size for local files. An empty Token means
// the backend offers no validator; the cache treats such entries as always
// stale.
type Info struct {
	Size  int64
	Token string
}

// Backend is the capability set each scheme implements.
//
// Store must stage writes so that the object either becomes fully visible at
// the backend or not at all; callers never observe a partial write.
type Backend interface {
	// Stat reports existence, size and the freshness token of location.
	Stat(ctx context.Context, location string) (Info, error)

	// Open returns a stream of the resource content.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// Store uploads the content read from r to location.
	Store(ctx context.Context, location string, r io.Reader) error

	// Delete removes the resource. Best-effort; read-only backends return
	// ErrReadOnly.
	Delete(ctx context.Context, location string) error
}

// Dispatch maps a scheme to its driver.
type Dispatch func(scheme resource.Scheme) (Backend, error)
