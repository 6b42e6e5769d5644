package codec

import (
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/skyline93/stash/internal/fs"
)

// Decompress wraps r with the decompressor for c. The returned ReadCloser
// closes r as well.
func Decompress(r io.ReadCloser, c Compression) (io.ReadCloser, error) {
	switch c {
	case None:
		return r, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, r}}, nil
	case Bzip2:
		return &readCloser{Reader: bzip2.NewReader(r), closers: []io.Closer{r}}, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "xz")
		}
		return &readCloser{Reader: xr, closers: []io.Closer{r}}, nil
	case LZMA:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "lzma")
		}
		return &readCloser{Reader: lr, closers: []io.Closer{r}}, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "zstd")
		}
		return &readCloser{Reader: zr, closers: []io.Closer{closerFunc(func() error {
			zr.Close()
			return nil
		}), r}}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedCompression, "%v", c)
}

// Open opens the file at filename, transparently decompressing it. name is
// the logical filename for the suffix check.
func Open(filename, name string) (io.ReadCloser, error) {
	c, err := DetectCompression(filename, name)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	rc, err := Decompress(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return rc, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var err error
	for _, c := range rc.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
