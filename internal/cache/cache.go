// Package cache implements the resource cache: a single cache root shared by
// any number of processes, holding one data file per cached artifact plus a
// JSON index, with per-key advisory locks serializing the
// check-freshness/fetch/install sequence.
package cache

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/fs"
	"github.com/skyline93/stash/internal/resource"
)

// ErrChecksumMismatch is returned when fetched content does not match the
// checksum the caller expected.
var ErrChecksumMismatch = errors.New("checksum mismatch")

const defaultLockTimeout = 10 * time.Minute

// Manager orchestrates key derivation, locking, freshness comparison,
// download and atomic install for one cache root.
type Manager struct {
	root        string
	dispatch    backend.Dispatch
	lockTimeout time.Duration

	// group suppresses duplicate in-process fetches before they reach the
	// cross-process file lock.
	group singleflight.Group
}

// Options control a single Resolve call.
type Options struct {
	// ForceRefresh skips the freshness comparison and refetches.
	ForceRefresh bool

	// Checksum, when non-empty, is the expected hex SHA-256 of the resolved
	// content. A cached copy that fails verification is refetched; fetched
	// content that fails it fails the resolve with ErrChecksumMismatch.
	Checksum string
}

// New opens (creating if necessary) the cache rooted at root.
func New(root string, dispatch backend.Dispatch, lockTimeout time.Duration) (*Manager, error) {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	m := &Manager{root: root, dispatch: dispatch, lockTimeout: lockTimeout}
	for _, dir := range []string{root, m.dataDir(), m.lockDir(), m.extractDir(), m.stagingDir()} {
		if err := fs.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "create cache root")
		}
	}
	return m, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string { return m.root }

func (m *Manager) dataDir() string    { return filepath.Join(m.root, "data") }
func (m *Manager) lockDir() string    { return filepath.Join(m.root, "locks") }
func (m *Manager) extractDir() string { return filepath.Join(m.root, "extract") }
func (m *Manager) stagingDir() string { return filepath.Join(m.root, "staging") }

func (m *Manager) indexPath() string     { return filepath.Join(m.root, "index.json") }
func (m *Manager) indexLockPath() string { return filepath.Join(m.root, "index.lock") }

func (m *Manager) keyLockPath(key string) string {
	return filepath.Join(m.lockDir(), key+".lock")
}

// dataPath places entries under a two-character shard prefix of the key to
// bound directory size.
func (m *Manager) dataPath(key string) string {
	return filepath.Join(m.dataDir(), key[:2], key)
}

// ExtractRoot returns the directory holding extraction artifacts derived
// from the base artifact with the given key.
func (m *Manager) ExtractRoot(key string) string {
	return filepath.Join(m.extractDir(), key[:2], key)
}

// withIndex runs fn with the index loaded fresh from disk, holding the index
// lock. When exclusive, the (possibly modified) index is written back
// atomically before the lock is dropped.
func (m *Manager) withIndex(exclusive bool, fn func(idx *Index) error) error {
	l, err := acquireLock(m.indexLockPath(), exclusive, m.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = l.release() }()

	idx, err := loadIndex(m.indexPath())
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	if exclusive {
		return idx.save(m.indexPath())
	}
	return nil
}

// Resolve turns an identifier into a local file path per the caching
// algorithm: at most one fetch in flight per key across all processes
// sharing the cache root. The returned path is the base artifact; archive
// members are extracted separately.
func (m *Manager) Resolve(ctx context.Context, id resource.Identifier, opts Options) (string, error) {
	// Local paths are served in place; the cache never copies them.
	if id.Scheme == resource.SchemeLocal {
		if _, err := fs.Stat(id.Location); err != nil {
			if os.IsNotExist(err) {
				return "", errors.Wrapf(backend.ErrNotFound, "%s", id.Location)
			}
			return "", errors.Wrap(err, "Resolve")
		}
		return id.Location, nil
	}

	key := id.Key()
	groupKey := key
	if opts.ForceRefresh {
		groupKey += "!force"
	}
	if opts.Checksum != "" {
		// A caller expecting a specific digest must not be coalesced into a
		// flight that never verifies it.
		groupKey += "!" + opts.Checksum
	}

	v, err, _ := m.group.Do(groupKey, func() (interface{}, error) {
		lock, err := acquireLock(m.keyLockPath(key), true, m.lockTimeout)
		if err != nil {
			return nil, err
		}
		defer func() { _ = lock.release() }()

		return m.resolveLocked(ctx, id, key, opts)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// resolveLocked runs with the per-key lock held.
func (m *Manager) resolveLocked(ctx context.Context, id resource.Identifier, key string, opts Options) (string, error) {
	be, err := m.dispatch(id.Scheme)
	if err != nil {
		return "", err
	}

	var entry Entry
	var exists bool
	if err := m.withIndex(false, func(idx *Index) error {
		entry, exists = idx.lookup(id)
		return nil
	}); err != nil {
		return "", err
	}
	// The index and the filesystem must agree; a missing data file makes the
	// entry invalid no matter what the index says.
	if exists {
		if _, err := fs.Stat(m.dataPath(key)); err != nil {
			exists = false
		}
	}

	if exists && !opts.ForceRefresh {
		info, err := be.Stat(ctx, id.Location)
		switch {
		case err == nil && info.Token != "" && info.Token == entry.Token:
			if verr := m.verifyInstalled(key, opts.Checksum); verr != nil {
				log.Warnf("cached copy of %s fails verification, refetching: %v", id, verr)
				return m.fetch(ctx, be, id, key, info, opts)
			}
			log.Debugf("cache hit for %s (token %q unchanged)", id, info.Token)
			return m.dataPath(key), nil
		case err == nil:
			log.Debugf("cache stale for %s: token %q != %q", id, info.Token, entry.Token)
			return m.fetch(ctx, be, id, key, info, opts)
		case transient(ctx, err):
			// Staleness beats unavailability.
			if verr := m.verifyInstalled(key, opts.Checksum); verr != nil {
				return "", verr
			}
			log.Warnf("serving stale cache for %s: %v", id, err)
			return m.dataPath(key), nil
		default:
			return "", err
		}
	}

	info, err := be.Stat(ctx, id.Location)
	if err != nil {
		if exists && transient(ctx, err) {
			if verr := m.verifyInstalled(key, opts.Checksum); verr != nil {
				return "", verr
			}
			log.Warnf("serving stale cache for %s: %v", id, err)
			return m.dataPath(key), nil
		}
		return "", err
	}
	return m.fetch(ctx, be, id, key, info, opts)
}

// verifyInstalled checks the installed data file for key against an expected
// hex SHA-256; an empty want always passes.
func (m *Manager) verifyInstalled(key, want string) error {
	if want == "" {
		return nil
	}
	f, err := fs.Open(m.dataPath(key))
	if err != nil {
		return errors.Wrap(err, "verify checksum")
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return errors.Wrap(err, "verify checksum")
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if digest != want {
		return errors.Wrapf(ErrChecksumMismatch, "got sha256:%s, want sha256:%s", digest, want)
	}
	return nil
}

// fetch streams the resource to a temporary file under the cache root and
// atomically renames it into place, then records the entry. An interrupted
// fetch leaves only an orphaned staging file; the canonical name never holds
// a partial download.
func (m *Manager) fetch(ctx context.Context, be backend.Backend, id resource.Identifier, key string, info backend.Info, opts Options) (string, error) {
	rd, err := be.Open(ctx, id.Location)
	if err != nil {
		return "", err
	}
	defer func() { _ = rd.Close() }()

	tmp, err := fs.TempFile(m.stagingDir(), "download-*")
	if err != nil {
		return "", errors.Wrap(err, "fetch")
	}
	tmpName := tmp.Name()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), rd)
	if err == nil {
		err = tmp.Sync()
	}
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(tmpName)
		return "", errors.Wrap(err, "download")
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if opts.Checksum != "" && digest != opts.Checksum {
		_ = fs.Remove(tmpName)
		return "", errors.Wrapf(ErrChecksumMismatch, "got sha256:%s, want sha256:%s", digest, opts.Checksum)
	}

	token := info.Token
	if token == "" {
		// Backend offers no validator: fall back to a content-derived one.
		// Stat will keep returning an empty token, so the entry stays
		// "always stale" and is refetched on access.
		token = "sha256:" + digest
	}

	target := m.dataPath(key)
	if err := fs.MkdirAll(filepath.Dir(target), 0700); err != nil {
		_ = fs.Remove(tmpName)
		return "", errors.Wrap(err, "fetch")
	}
	if err := fs.AtomicRename(tmpName, target); err != nil {
		_ = fs.Remove(tmpName)
		return "", errors.Wrap(err, "install")
	}

	// A replaced artifact invalidates members extracted from the old one.
	if err := fs.RemoveAll(m.ExtractRoot(key)); err != nil {
		return "", errors.Wrap(err, "drop extractions")
	}

	entry := Entry{
		Key:       key,
		URL:       id.Base().String(),
		Scheme:    id.Scheme.String(),
		Token:     token,
		Size:      size,
		FetchedAt: time.Now(),
	}
	if err := m.withIndex(true, func(idx *Index) error {
		idx.Entries[key] = entry
		return nil
	}); err != nil {
		return "", err
	}

	log.Debugf("fetched %s (%d bytes, token %q)", id, size, token)
	return target, nil
}

// transient reports whether err is a temporary backend failure for which a
// stale cached copy may be served. Deterministic failures (missing resource,
// rejected credentials) and caller cancellation are not transient.
func transient(ctx context.Context, err error) bool {
	if errors.Is(err, backend.ErrNotFound) ||
		errors.Is(err, backend.ErrAuthentication) ||
		errors.Is(err, backend.ErrReadOnly) {
		return false
	}
	return ctx.Err() == nil
}
