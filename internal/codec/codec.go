// Package codec layers transparent decompression and archive-member
// extraction over resolved cache files.
//
// Compression is selected by filename suffix first and magic-byte sniffing as
// a fallback, so cache files (named by their key, without any suffix) are
// still recognized.
package codec

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/skyline93/stash/internal/fs"
)

var (
	// ErrUnsupportedCompression is returned for compression formats the codec
	// cannot unwrap.
	ErrUnsupportedCompression = errors.New("unsupported compression format")

	// ErrUnsupportedArchive is returned when a member chain addresses into a
	// file that is neither a zip nor a tar archive.
	ErrUnsupportedArchive = errors.New("unsupported archive format")

	// ErrMemberNotFound is returned when an archive member path does not
	// resolve.
	ErrMemberNotFound = errors.New("archive member not found")
)

// Compression identifies a stream compression format.
type Compression uint8

const (
	None Compression = iota
	Gzip
	Bzip2
	XZ
	LZMA
	Zstd
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case XZ:
		return "xz"
	case LZMA:
		return "lzma"
	case Zstd:
		return "zstd"
	}
	return "invalid"
}

// bySuffix maps filename suffixes to compression formats. Checked before any
// content sniffing.
var bySuffix = map[string]Compression{
	".gz":   Gzip,
	".tgz":  Gzip,
	".bz2":  Bzip2,
	".tbz2": Bzip2,
	".xz":   XZ,
	".txz":  XZ,
	".lzma": LZMA,
	".zst":  Zstd,
}

var magics = []struct {
	prefix []byte
	c      Compression
}{
	{[]byte{0x1f, 0x8b}, Gzip},
	{[]byte{0x42, 0x5a, 0x68}, Bzip2},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, XZ},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
}

// DetectCompression determines the compression of the file at filename. name
// is the logical filename used for the suffix check; it may differ from
// filename for cache files named by key.
func DetectCompression(filename, name string) (Compression, error) {
	if c, ok := bySuffix[strings.ToLower(path.Ext(name))]; ok {
		return c, nil
	}

	f, err := fs.Open(filename)
	if err != nil {
		return None, errors.Wrap(err, "DetectCompression")
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return None, errors.Wrap(err, "DetectCompression")
	}
	return sniff(head[:n]), nil
}

func sniff(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.c
		}
	}
	return None
}
