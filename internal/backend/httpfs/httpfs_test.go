package httpfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/stash/internal/backend"
)

func TestStatTokenPrefersETag(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.Header().Set("Content-Length", "5")
	}))
	defer srv.Close()

	info, err := New(nil).Stat(context.Background(), srv.URL+"/file")
	require.NoError(t, err)
	assert.Equal(t, `"abc123"`, info.Token)
	assert.Equal(t, int64(5), info.Size)
}

func TestStatTokenFallsBackToLastModified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
	}))
	defer srv.Close()

	info, err := New(nil).Stat(context.Background(), srv.URL+"/file")
	require.NoError(t, err)
	assert.Equal(t, "Wed, 21 Oct 2015 07:28:00 GMT", info.Token)
}

func TestStatNoValidator(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	info, err := New(nil).Stat(context.Background(), srv.URL+"/file")
	require.NoError(t, err)
	assert.Empty(t, info.Token)
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

		_, err := New(nil).Stat(context.Background(), srv.URL+"/file")
		require.ErrorIs(t, err, tc.want, "status %d", tc.code)
		srv.Close()
	}
}

func TestStatRetriesServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", `"recovered"`)
	}))
	defer srv.Close()

	info, err := New(nil).Stat(context.Background(), srv.URL+"/file")
	require.NoError(t, err)
	assert.Equal(t, `"recovered"`, info.Token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	rd, err := New(nil).Open(context.Background(), srv.URL+"/file")
	require.NoError(t, err)
	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	require.NoError(t, rd.Close())
	assert.Equal(t, "payload", string(data))
}

func TestOpenNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(nil).Open(context.Background(), srv.URL+"/file")
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestWritesRejected(t *testing.T) {
	t.Parallel()

	b := New(nil)
	err := b.Store(context.Background(), "https://example.com/x", nil)
	require.ErrorIs(t, err, backend.ErrReadOnly)
	err = b.Delete(context.Background(), "https://example.com/x")
	require.ErrorIs(t, err, backend.ErrReadOnly)
}
