// Package s3 keeps policy documents and embedding caches in an
// S3-compatible bucket through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/flightqa/flightqa/internal/storage"
)

type Config struct {
	// Endpoint is host:port or an http(s) URL; an https URL forces TLS.
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is the part of the object API the store needs, already bound to
// one bucket. Keys passed in are absolute within the bucket.
type bucket interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// Store nests every key under a prefix. Keys it returns are relative to
// that prefix, so a Store and a local.Store are interchangeable.
type Store struct {
	bucket bucket
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	host, secure, err := hostOf(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	b := &minioBucket{client: client, name: name}
	if cfg.AutoCreateBucket {
		if err := b.ensure(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return newStore(b, cfg.Prefix), nil
}

func newStore(b bucket, prefix string) *Store {
	return &Store{bucket: b, prefix: nest("", prefix)}
}

// WithPrefix returns a view of the same bucket nested under sub.
func (s *Store) WithPrefix(sub string) *Store {
	return &Store{bucket: s.bucket, prefix: nest(s.prefix, sub)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	rel, err := storage.CleanKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.PutObject(ctx, s.absolute(rel), body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %q: %w", rel, err)
	}
	info.Key = rel
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rel, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(ctx, s.absolute(rel))
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("get %q: %w", rel, err)
	}
	return body, nil
}

// List returns objects under prefix sorted by key. Objects outside the
// store's own prefix never appear.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	want := strings.TrimLeft(strings.TrimSpace(prefix), "/")
	objects, err := s.bucket.ListObjects(ctx, s.absolute(want))
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", want, err)
	}
	out := objects[:0]
	for _, object := range objects {
		rel, ok := s.relative(object.Key)
		if !ok {
			continue
		}
		object.Key = rel
		out = append(out, object)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) absolute(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

func (s *Store) relative(key string) (string, bool) {
	if s.prefix == "" {
		return key, key != ""
	}
	rel, ok := strings.CutPrefix(key, s.prefix+"/")
	return rel, ok && rel != ""
}

// nest joins parent and sub into a prefix without leading or trailing
// slashes.
func nest(parent, sub string) string {
	joined := path.Clean("/" + path.Join(parent, strings.TrimSpace(sub)))
	return strings.Trim(joined, "/")
}

func hostOf(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "", false, fmt.Errorf("invalid s3 endpoint %q", endpoint)
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) ensure(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", b.name, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", b.name, err)
	}
	return nil
}

func (b *minioBucket) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploaded, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag}, nil
}

// GetObject stats before returning, since minio defers errors such as a
// missing key until the first read.
func (b *minioBucket) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (b *minioBucket) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for object := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, notFound(object.Err)
		}
		out = append(out, storage.ObjectInfo{Key: object.Key, Size: object.Size, ETag: object.ETag, LastModified: object.LastModified})
	}
	return out, nil
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
