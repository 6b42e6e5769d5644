package cache

import (
	"context"
	"encoding/hex"
	"hash"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/fs"
	"github.com/skyline93/stash/internal/resource"
)

// WriteHandle stages writes in a private file under the cache root and
// commits them to the backend in one step. Until Commit succeeds the backend
// never sees a partial object; after Discard nothing is written at all.
//
// WriteHandle implements io.WriteCloser: Close commits, unless a write
// already failed or Discard was called.
type WriteHandle struct {
	m      *Manager
	ctx    context.Context
	id     resource.Identifier
	be     backend.Backend
	tmp    *os.File
	hasher hash.Hash
	size   int64
	werr   error
	done   bool
}

// NewWriteHandle opens a staged write to the identifier's backend location.
func (m *Manager) NewWriteHandle(ctx context.Context, id resource.Identifier) (*WriteHandle, error) {
	be, err := m.dispatch(id.Scheme)
	if err != nil {
		return nil, err
	}
	tmp, err := fs.TempFile(m.stagingDir(), "upload-*")
	if err != nil {
		return nil, errors.Wrap(err, "stage write")
	}
	return &WriteHandle{
		m:      m,
		ctx:    ctx,
		id:     id,
		be:     be,
		tmp:    tmp,
		hasher: sha256.New(),
	}, nil
}

func (h *WriteHandle) Write(p []byte) (int, error) {
	if h.done {
		return 0, errors.New("write on closed handle")
	}
	n, err := h.tmp.Write(p)
	if n > 0 {
		_, _ = h.hasher.Write(p[:n])
		h.size += int64(n)
	}
	if err != nil && h.werr == nil {
		h.werr = err
	}
	return n, err
}

// Commit uploads the staged content through the backend and, for remote
// schemes, records a fresh cache entry so a subsequent read of the same
// identifier is served locally.
func (h *WriteHandle) Commit() error {
	if h.done {
		return errors.New("commit on closed handle")
	}
	h.done = true

	tmpName := h.tmp.Name()
	err := h.tmp.Sync()
	cerr := h.tmp.Close()
	if err == nil {
		err = cerr
	}
	if h.werr != nil {
		err = h.werr
	}
	if err != nil {
		_ = fs.Remove(tmpName)
		return errors.Wrap(err, "commit")
	}

	f, err := fs.Open(tmpName)
	if err != nil {
		_ = fs.Remove(tmpName)
		return errors.Wrap(err, "commit")
	}
	err = h.be.Store(h.ctx, h.id.Location, f)
	_ = f.Close()
	if err != nil {
		_ = fs.Remove(tmpName)
		return err
	}

	if h.id.Scheme.Remote() {
		if err := h.record(tmpName); err != nil {
			// The upload itself succeeded; a failed cache record only costs
			// a refetch later.
			log.Warnf("upload committed but not cached for %s: %v", h.id, err)
		}
	}
	return fs.RemoveIfExists(tmpName)
}

// record installs the staged file as the cache entry for the identifier just
// written, using the backend's post-commit freshness token.
func (h *WriteHandle) record(tmpName string) error {
	key := h.id.Key()
	lock, err := acquireLock(h.m.keyLockPath(key), true, h.m.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.release() }()

	info, err := h.be.Stat(h.ctx, h.id.Location)
	if err != nil {
		return err
	}
	token := info.Token
	if token == "" {
		token = "sha256:" + hex.EncodeToString(h.hasher.Sum(nil))
	}

	target := h.m.dataPath(key)
	if err := fs.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}
	if err := fs.AtomicRename(tmpName, target); err != nil {
		return err
	}
	if err := fs.RemoveAll(h.m.ExtractRoot(key)); err != nil {
		return err
	}

	return h.m.withIndex(true, func(idx *Index) error {
		idx.Entries[key] = Entry{
			Key:       key,
			URL:       h.id.Base().String(),
			Scheme:    h.id.Scheme.String(),
			Token:     token,
			Size:      h.size,
			FetchedAt: time.Now(),
		}
		return nil
	})
}

// Discard drops the staged content without touching the backend.
func (h *WriteHandle) Discard() error {
	if h.done {
		return nil
	}
	h.done = true
	name := h.tmp.Name()
	_ = h.tmp.Close()
	return fs.RemoveIfExists(name)
}

// Close commits the handle; if a write failed, the staged content is
// discarded and the write error returned instead.
func (h *WriteHandle) Close() error {
	if h.done {
		return nil
	}
	if h.werr != nil {
		err := h.werr
		_ = h.Discard()
		return err
	}
	return h.Commit()
}
