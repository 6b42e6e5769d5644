// Package s3fs implements the backend driver for S3-compatible object stores.
//
// Locations have the form
//
//	s3://[access_key:secret_key@]bucket/key[?endpoint_url=...&region=...]
//
// Credentials fall back to the usual AWS environment variables when the URL
// carries none.
package s3fs

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/stash/internal/backend"
)

const defaultEndpoint = "s3.amazonaws.com"

// S3 serves s3:// locations through any S3-compatible endpoint.
type S3 struct {
	mu      sync.Mutex
	clients map[string]*minio.Client
}

// New returns an s3 backend.
func New() *S3 {
	return &S3{clients: make(map[string]*minio.Client)}
}

type object struct {
	bucket   string
	key      string
	endpoint string
	secure   bool
	region   string
	accessKey,
	secretKey string
}

func parseLocation(location string) (object, error) {
	u, err := url.Parse(location)
	if err != nil {
		return object{}, errors.Wrapf(err, "parse %s", location)
	}

	obj := object{
		bucket:   u.Host,
		key:      strings.TrimPrefix(u.Path, "/"),
		endpoint: defaultEndpoint,
		secure:   true,
		region:   u.Query().Get("region"),
	}
	if obj.bucket == "" || obj.key == "" {
		return object{}, errors.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}

	if ep := u.Query().Get("endpoint_url"); ep != "" {
		epu, err := url.Parse(ep)
		if err != nil {
			return object{}, errors.Wrapf(err, "parse endpoint_url %s", ep)
		}
		obj.endpoint = epu.Host
		obj.secure = epu.Scheme != "http"
	}

	if u.User != nil {
		obj.accessKey = u.User.Username()
		obj.secretKey, _ = u.User.Password()
	}
	return obj, nil
}

func (b *S3) client(obj object) (*minio.Client, error) {
	var creds *credentials.Credentials
	if obj.accessKey != "" {
		creds = credentials.NewStaticV4(obj.accessKey, obj.secretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}

	cacheKey := obj.endpoint + "/" + obj.region + "/" + obj.accessKey

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[cacheKey]; ok {
		return c, nil
	}

	c, err := minio.New(obj.endpoint, &minio.Options{
		Creds:  creds,
		Secure: obj.secure,
		Region: obj.region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio.New")
	}
	b.clients[cacheKey] = c
	return c, nil
}

func (b *S3) Stat(ctx context.Context, location string) (backend.Info, error) {
	obj, err := parseLocation(location)
	if err != nil {
		return backend.Info{}, err
	}
	c, err := b.client(obj)
	if err != nil {
		return backend.Info{}, err
	}

	oi, err := c.StatObject(ctx, obj.bucket, obj.key, minio.StatObjectOptions{})
	if err != nil {
		return backend.Info{}, wrapErr(err, location)
	}
	return backend.Info{Size: oi.Size, Token: oi.ETag}, nil
}

func (b *S3) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	obj, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	c, err := b.client(obj)
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; stat first so a missing key fails here and not on
	// the first Read.
	if _, err := c.StatObject(ctx, obj.bucket, obj.key, minio.StatObjectOptions{}); err != nil {
		return nil, wrapErr(err, location)
	}

	rd, err := c.GetObject(ctx, obj.bucket, obj.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapErr(err, location)
	}
	return rd, nil
}

func (b *S3) Store(ctx context.Context, location string, r io.Reader) error {
	obj, err := parseLocation(location)
	if err != nil {
		return err
	}
	c, err := b.client(obj)
	if err != nil {
		return err
	}

	// Multipart upload: the object only becomes visible after a successful
	// complete call, so an interrupted Store leaves no partial object.
	ui, err := c.PutObject(ctx, obj.bucket, obj.key, r, -1, minio.PutObjectOptions{})
	if err != nil {
		return wrapErr(err, location)
	}
	log.Debugf("stored s3://%s/%s (%d bytes)", obj.bucket, obj.key, ui.Size)
	return nil
}

func (b *S3) Delete(ctx context.Context, location string) error {
	obj, err := parseLocation(location)
	if err != nil {
		return err
	}
	c, err := b.client(obj)
	if err != nil {
		return err
	}
	if err := c.RemoveObject(ctx, obj.bucket, obj.key, minio.RemoveObjectOptions{}); err != nil {
		return wrapErr(err, location)
	}
	return nil
}

func wrapErr(err error, location string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Wrapf(backend.ErrNotFound, "%s", location)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.Wrapf(backend.ErrAuthentication, "%s", location)
	}
	return errors.Wrapf(err, "s3 request for %s", location)
}
