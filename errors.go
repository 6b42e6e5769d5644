package stash

import (
	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/cache"
	"github.com/skyline93/stash/internal/codec"
	"github.com/skyline93/stash/internal/resource"
)

// Error kinds, distinguishable with errors.Is. The CLI maps each kind to its
// own exit status.
var (
	// ErrUnsupportedScheme: the identifier's scheme matches no known backend.
	ErrUnsupportedScheme = resource.ErrUnsupportedScheme

	// ErrNotFound: the resource does not exist at the backend.
	ErrNotFound = backend.ErrNotFound

	// ErrAuthentication: backend credentials are missing or rejected.
	ErrAuthentication = backend.ErrAuthentication

	// ErrReadOnly: a write was attempted on a read-only backend.
	ErrReadOnly = backend.ErrReadOnly

	// ErrLockTimeout: a cache lock could not be acquired within the bounded wait.
	ErrLockTimeout = cache.ErrLockTimeout

	// ErrEntryNotFound: no cache entry exists for the identifier.
	ErrEntryNotFound = cache.ErrEntryNotFound

	// ErrChecksumMismatch: fetched content differs from the expected checksum.
	ErrChecksumMismatch = cache.ErrChecksumMismatch

	// ErrMemberNotFound: an archive member path did not resolve.
	ErrMemberNotFound = codec.ErrMemberNotFound

	// ErrUnsupportedCompression: unrecognized compression format.
	ErrUnsupportedCompression = codec.ErrUnsupportedCompression

	// ErrUnsupportedArchive: member addressing into a non-archive file.
	ErrUnsupportedArchive = codec.ErrUnsupportedArchive
)
