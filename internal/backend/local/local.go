// Package local implements the backend driver for the local filesystem.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/fs"
)

// Local serves bare filesystem paths. The freshness token is derived from
// modification time and size, so touching or rewriting a file invalidates
// cached copies of it.
type Local struct{}

// New returns a local filesystem backend.
func New() *Local {
	return &Local{}
}

// Token builds the freshness token for fi.
func Token(fi os.FileInfo) string {
	return strconv.FormatInt(fi.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(fi.Size(), 10)
}

func (b *Local) Stat(_ context.Context, location string) (backend.Info, error) {
	fi, err := fs.Stat(location)
	if err != nil {
		if os.IsNotExist(err) {
			return backend.Info{}, errors.Wrapf(backend.ErrNotFound, "%s", location)
		}
		if os.IsPermission(err) {
			return backend.Info{}, errors.Wrapf(backend.ErrAuthentication, "%s", location)
		}
		return backend.Info{}, errors.Wrap(err, "Stat")
	}
	return backend.Info{Size: fi.Size(), Token: Token(fi)}, nil
}

func (b *Local) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := fs.Open(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(backend.ErrNotFound, "%s", location)
		}
		return nil, errors.Wrap(err, "Open")
	}
	return f, nil
}

// Store writes to a temporary file in the target directory, flushes it and
// renames it into place.
func (b *Local) Store(_ context.Context, location string, r io.Reader) error {
	dir := filepath.Dir(location)
	tmp, err := fs.TempFile(dir, filepath.Base(location)+"-tmp-*")
	if err != nil {
		return errors.Wrap(err, "TempFile")
	}

	_, err = io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "Store")
	}

	if err := fs.Chmod(tmp.Name(), 0644); err != nil {
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "Chmod")
	}
	if err := fs.AtomicRename(tmp.Name(), location); err != nil {
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "Rename")
	}

	log.Debugf("stored %s", location)
	return nil
}

func (b *Local) Delete(_ context.Context, location string) error {
	if _, err := fs.Stat(location); os.IsNotExist(err) {
		return errors.Wrapf(backend.ErrNotFound, "%s", location)
	}
	return fs.RemoveAll(location)
}
