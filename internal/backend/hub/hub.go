// Package hub implements the read-only backend driver for model-hub
// repositories.
//
// Locations have the form
//
//	hf://owner/repo[@revision]/path/inside/repo
//
// and are served through the hub's HTTP resolve endpoint. The freshness token
// is the hub's linked entity tag, which tracks the content of the file at the
// requested revision.
package hub

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/skyline93/stash/internal/backend"
	"github.com/skyline93/stash/internal/backend/httpfs"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "https://huggingface.co"

const defaultRevision = "main"

// Hub serves hf:// locations.
type Hub struct {
	endpoint string
	token    string
	inner    *httpfs.HTTP
	head     *http.Client
}

// New returns a hub backend for endpoint, authenticating with token when it
// is non-empty.
func New(endpoint, token string, client *http.Client) *Hub {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	authed := &http.Client{
		Transport:     &authTransport{token: token, next: rt},
		CheckRedirect: client.CheckRedirect,
		Timeout:       client.Timeout,
	}
	// Stat must see the hub's own headers, not those of the CDN the request
	// is redirected to.
	head := &http.Client{
		Transport: authed.Transport,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Hub{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		inner:    httpfs.New(authed),
		head:     head,
	}
}

type repoFile struct {
	repo     string
	revision string
	path     string
}

func parseLocation(location string) (repoFile, error) {
	rest := strings.TrimPrefix(location, "hf://")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return repoFile{}, errors.Errorf("invalid hub location %q: want hf://owner/repo/path", location)
	}

	rf := repoFile{revision: defaultRevision, path: parts[2]}
	name := parts[1]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		rf.revision = name[at+1:]
		name = name[:at]
	}
	rf.repo = parts[0] + "/" + name
	return rf, nil
}

func (b *Hub) resolveURL(rf repoFile) string {
	return b.endpoint + "/" + rf.repo + "/resolve/" + rf.revision + "/" + rf.path
}

func (b *Hub) Stat(ctx context.Context, location string) (backend.Info, error) {
	rf, err := parseLocation(location)
	if err != nil {
		return backend.Info{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.resolveURL(rf), nil)
	if err != nil {
		return backend.Info{}, errors.Wrap(err, "Stat")
	}
	resp, err := b.head.Do(req)
	if err != nil {
		return backend.Info{}, errors.Wrap(err, "Stat")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusFound, http.StatusTemporaryRedirect, http.StatusMovedPermanently:
	case http.StatusNotFound:
		return backend.Info{}, errors.Wrapf(backend.ErrNotFound, "%s", location)
	case http.StatusUnauthorized, http.StatusForbidden:
		return backend.Info{}, errors.Wrapf(backend.ErrAuthentication, "%s", location)
	default:
		return backend.Info{}, errors.Errorf("hub status %d for %s", resp.StatusCode, location)
	}

	return backend.Info{Size: size(resp.Header, resp.ContentLength), Token: token(resp.Header)}, nil
}

func (b *Hub) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	rf, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	return b.inner.Open(ctx, b.resolveURL(rf))
}

func (b *Hub) Store(_ context.Context, location string, _ io.Reader) error {
	return errors.Wrapf(backend.ErrReadOnly, "%s", location)
}

func (b *Hub) Delete(_ context.Context, location string) error {
	return errors.Wrapf(backend.ErrReadOnly, "%s", location)
}

func token(h http.Header) string {
	if t := h.Get("X-Linked-Etag"); t != "" {
		return t
	}
	return h.Get("ETag")
}

// size prefers the hub's linked size header: on a redirect response the
// Content-Length describes the pointer body, not the file.
func size(h http.Header, fallback int64) int64 {
	if v := h.Get("X-Linked-Size"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

type authTransport struct {
	token string
	next  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" && req.Header.Get("Authorization") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.next.RoundTrip(req)
}
