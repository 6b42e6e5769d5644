package codec

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/stash/internal/fs"
	"github.com/skyline93/stash/internal/resource"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ExtractMember resolves the identifier's archive-member chain against the
// resolved base artifact at basePath and returns the local path of the final
// member. Each step of the chain is extracted to a transient file under
// extractRoot, named by a key derived from the base key and the chain so far,
// and re-used on later accesses.
func ExtractMember(id resource.Identifier, basePath, extractRoot string) (string, error) {
	cur := basePath
	curName := path.Base(id.Location)

	for i, member := range id.Members {
		outKey := id.MemberKey(id.Members[:i+1])
		outPath := filepath.Join(extractRoot, outKey[:2], outKey)

		if _, err := fs.Stat(outPath); err != nil {
			log.Debugf("extracting %q from %s", member, cur)
			if err := extractOne(cur, curName, member, outPath); err != nil {
				return "", err
			}
		}
		cur, curName = outPath, member
	}
	return cur, nil
}

// extractOne pulls a single member out of the archive at srcPath and installs
// it atomically at outPath. srcName is the logical filename of the archive,
// used for compression suffix detection.
func extractOne(srcPath, srcName, member, outPath string) error {
	comp, err := DetectCompression(srcPath, srcName)
	if err != nil {
		return err
	}

	head, err := decompressedHead(srcPath, comp)
	if err != nil {
		return err
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return extractZip(srcPath, comp, member, outPath)
	case isTarHeader(head):
		return extractTar(srcPath, comp, member, outPath)
	}
	return errors.Wrapf(ErrUnsupportedArchive, "%s", srcName)
}

// decompressedHead returns the first block of the decompressed content.
func decompressedHead(srcPath string, comp Compression) ([]byte, error) {
	f, err := fs.Open(srcPath)
	if err != nil {
		return nil, err
	}
	rc, err := Decompress(f, comp)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read archive header")
	}
	return head[:n], nil
}

// isTarHeader checks for the ustar magic in a tar header block.
func isTarHeader(head []byte) bool {
	return len(head) >= 262 && string(head[257:262]) == "ustar"
}

func extractZip(srcPath string, comp Compression, member, outPath string) error {
	// Zip needs random access. A compressed zip is first materialized as a
	// plain temporary file.
	if comp != None {
		tmp, err := fs.TempFile(filepath.Dir(outPath), "unzip-*")
		if err != nil {
			return err
		}
		defer func() { _ = fs.RemoveIfExists(tmp.Name()) }()

		f, err := fs.Open(srcPath)
		if err != nil {
			_ = tmp.Close()
			return err
		}
		rc, err := Decompress(f, comp)
		if err != nil {
			_ = f.Close()
			_ = tmp.Close()
			return err
		}
		_, err = io.Copy(tmp, rc)
		_ = rc.Close()
		cerr := tmp.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "decompress zip")
		}
		srcPath = tmp.Name()
	}

	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedArchive, "open zip: %v", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if memberName(f.Name) != member || f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrap(err, "open zip member")
		}
		err = install(rc, outPath)
		_ = rc.Close()
		return err
	}
	return errors.Wrapf(ErrMemberNotFound, "%q", member)
}

func extractTar(srcPath string, comp Compression, member, outPath string) error {
	f, err := fs.Open(srcPath)
	if err != nil {
		return err
	}
	rc, err := Decompress(f, comp)
	if err != nil {
		_ = f.Close()
		return err
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read tar")
		}
		if hdr.Typeflag != tar.TypeReg || memberName(hdr.Name) != member {
			continue
		}
		return install(tr, outPath)
	}
	return errors.Wrapf(ErrMemberNotFound, "%q", member)
}

// install streams r to a temporary file and atomically renames it to outPath.
func install(r io.Reader, outPath string) error {
	dir := filepath.Dir(outPath)
	tmp, err := fs.TempFile(dir, "extract-*")
	if err != nil {
		return err
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
		return errors.Wrap(err, "extract member")
	}
	if err := fs.AtomicRename(tmp.Name(), outPath); err != nil {
		_ = fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func memberName(name string) string {
	return strings.TrimPrefix(path.Clean(name), "./")
}
