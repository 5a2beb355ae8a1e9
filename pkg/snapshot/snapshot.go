// Package snapshot stores evidence images of drowsiness events in an
// S3-compatible bucket.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoBucket is returned when Config has no bucket.
var ErrNoBucket = errors.New("snapshot: bucket is required")

// Config locates the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every key, e.g. a vehicle id.
	Prefix string
}

// Uploader writes JPEG snapshots to one bucket.
type Uploader struct {
	client *miniogo.Client
	bucket string
	prefix string
}

// New creates an Uploader. It does not touch the network.
func New(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: create minio client: %w", err)
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("snapshot: check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("snapshot: create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Upload stores a JPEG under key.
func (u *Uploader) Upload(ctx context.Context, key string, jpeg []byte) error {
	_, err := u.client.PutObject(ctx, u.bucket, u.Key(key), bytes.NewReader(jpeg), int64(len(jpeg)), miniogo.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("snapshot: upload %s: %w", key, err)
	}
	return nil
}

// Key returns the object name key is stored under.
func (u *Uploader) Key(key string) string {
	key = strings.TrimLeft(key, "/")
	if u.prefix == "" {
		return key
	}
	return u.prefix + "/" + key
}

// Bucket returns the configured bucket.
func (u *Uploader) Bucket() string {
	return u.bucket
}
