package stash_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/stash"
)

func newTestClient(t *testing.T) *stash.Client {
	t.Helper()
	c, err := stash.New(stash.WithCacheRoot(t.TempDir()))
	require.NoError(t, err)
	return c
}

func TestCachedPathHTTP(t *testing.T) {
	t.Parallel()

	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, "corpus contents")
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx := context.Background()

	path, err := c.CachedPath(ctx, srv.URL+"/corpus.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "corpus contents", string(data))

	again, err := c.CachedPath(ctx, srv.URL+"/corpus.txt")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), gets.Load(), "a fresh cached copy is not refetched")

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, srv.URL+"/corpus.txt", entries[0].URL)
}

func TestCachedPathArchiveMember(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data/train.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "examples")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t)
	path, err := c.CachedPath(context.Background(), srv.URL+"/bundle.zip!data/train.txt")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "examples", string(data))

	_, err = c.CachedPath(context.Background(), srv.URL+"/bundle.zip!no/such/member")
	require.ErrorIs(t, err, stash.ErrMemberNotFound)
}

func TestOpenDecompress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t)
	rc, err := c.Open(context.Background(), srv.URL+"/notes.txt.gz", stash.WithDecompress())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "plain text", string(data))
}

func TestCachedPathNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.CachedPath(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, stash.ErrNotFound)
}

func TestCachedPathLocalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "local.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	c := newTestClient(t)
	path, err := c.CachedPath(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, file, path, "local files are served in place, not copied")
}

func TestUploadDownloadLocal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	c := newTestClient(t)
	ctx := context.Background()
	target := filepath.Join(dir, "store", "object.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))

	require.NoError(t, c.Upload(ctx, src, target))
	ok, err := c.Exists(ctx, target)
	require.NoError(t, err)
	assert.True(t, ok)

	dst := filepath.Join(dir, "copy.bin")
	require.NoError(t, c.Download(ctx, target, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, c.Delete(ctx, target))
	ok, err = c.Exists(ctx, target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadToReadOnlyBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	c := newTestClient(t)
	err := c.Upload(context.Background(), src, "https://example.com/target")
	require.ErrorIs(t, err, stash.ErrReadOnly)
}

func TestRemoveAndUpdate(t *testing.T) {
	t.Parallel()

	var content atomic.Value
	content.Store("one")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := content.Load().(string)
		w.Header().Set("ETag", `"`+body+`"`)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx := context.Background()
	url := srv.URL + "/data.txt"

	path, err := c.CachedPath(ctx, url)
	require.NoError(t, err)

	content.Store("two")
	require.NoError(t, c.Update(ctx, url))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, c.Remove(url))
	entries, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = c.Remove(url)
	require.ErrorIs(t, err, stash.ErrEntryNotFound)
}
