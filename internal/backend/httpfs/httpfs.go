// Package httpfs implements the read-only backend driver for http(s) URLs.
package httpfs

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/stash/internal/backend"
)

const defaultRetries = 4

// HTTP serves http:// and https:// URLs. The freshness token is the ETag
// header when the server provides one, else Last-Modified, else empty
// (treated as always stale by the cache).
type HTTP struct {
	client  *http.Client
	retries uint64
}

// New returns an http backend using client, or http.DefaultClient when nil.
func New(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, retries: defaultRetries}
}

func (b *HTTP) Stat(ctx context.Context, location string) (backend.Info, error) {
	var info backend.Info
	err := b.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if err := statusError(resp.StatusCode, location); err != nil {
			return err
		}
		info = backend.Info{Size: resp.ContentLength, Token: token(resp.Header)}
		return nil
	})
	if err != nil {
		return backend.Info{}, err
	}
	return info, nil
}

func (b *HTTP) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := b.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		if err := statusError(resp.StatusCode, location); err != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (b *HTTP) Store(_ context.Context, location string, _ io.Reader) error {
	return errors.Wrapf(backend.ErrReadOnly, "%s", location)
}

func (b *HTTP) Delete(_ context.Context, location string) error {
	return errors.Wrapf(backend.ErrReadOnly, "%s", location)
}

// retry runs op with exponential backoff. Server-side 5xx and transport
// errors are retried, everything else is permanent.
func (b *HTTP) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newExponentialBackOff(), b.retries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Debugf("retrying http request in %v: %v", wait, err)
	})
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0
	return bo
}

func statusError(code int, location string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return backoff.Permanent(errors.Wrapf(backend.ErrNotFound, "%s", location))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return backoff.Permanent(errors.Wrapf(backend.ErrAuthentication, "%s", location))
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return errors.Errorf("http status %d for %s", code, location)
	default:
		return backoff.Permanent(errors.Errorf("http status %d for %s", code, location))
	}
}

func token(h http.Header) string {
	if etag := h.Get("ETag"); etag != "" {
		return etag
	}
	return h.Get("Last-Modified")
}
