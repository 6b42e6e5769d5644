package hub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/stash/internal/backend"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		location string
		want     repoFile
	}{
		{"hf://org/model/config.json", repoFile{repo: "org/model", revision: "main", path: "config.json"}},
		{"hf://org/model@v1.2/weights/model.bin", repoFile{repo: "org/model", revision: "v1.2", path: "weights/model.bin"}},
	}
	for _, tc := range tests {
		rf, err := parseLocation(tc.location)
		require.NoError(t, err, tc.location)
		assert.Equal(t, tc.want, rf, tc.location)
	}

	for _, bad := range []string{"hf://org", "hf://org/model", "hf:///model/file"} {
		_, err := parseLocation(bad)
		require.Error(t, err, bad)
	}
}

func TestStatUsesLinkedEtag(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/model/resolve/main/config.json", r.URL.Path)
		assert.Equal(t, http.MethodHead, r.Method)

		// The hub answers with a redirect to a CDN, carrying the content etag
		// and size in its own headers.
		w.Header().Set("X-Linked-Etag", `"content-digest"`)
		w.Header().Set("ETag", `"pointer-digest"`)
		w.Header().Set("X-Linked-Size", "1048576")
		w.Header().Set("Location", "https://cdn.example.com/blob")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	b := New(srv.URL, "", nil)
	info, err := b.Stat(context.Background(), "hf://org/model/config.json")
	require.NoError(t, err)
	assert.Equal(t, `"content-digest"`, info.Token)
	assert.Equal(t, int64(1048576), info.Size, "the linked size is the file size, not the redirect body's")
}

func TestStatErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, backend.ErrNotFound},
		{http.StatusUnauthorized, backend.ErrAuthentication},
		{http.StatusForbidden, backend.ErrAuthentication},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))

		b := New(srv.URL, "", nil)
		_, err := b.Stat(context.Background(), "hf://org/model/config.json")
		require.ErrorIs(t, err, tc.want, "status %d", tc.code)
		srv.Close()
	}
}

func TestOpenSendsToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/org/model/resolve/v2/data.txt", r.URL.Path)
		_, _ = io.WriteString(w, "weights")
	}))
	defer srv.Close()

	b := New(srv.URL, "secret", nil)
	rd, err := b.Open(context.Background(), "hf://org/model@v2/data.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	require.NoError(t, rd.Close())
	assert.Equal(t, "weights", string(data))
}

func TestWritesRejected(t *testing.T) {
	t.Parallel()

	b := New("", "", nil)
	err := b.Store(context.Background(), "hf://org/model/x", nil)
	require.ErrorIs(t, err, backend.ErrReadOnly)
	err = b.Delete(context.Background(), "hf://org/model/x")
	require.ErrorIs(t, err, backend.ErrReadOnly)
}
