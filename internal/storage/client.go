package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when a key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectTooLarge guards reads against unbounded objects.
var ErrObjectTooLarge = errors.New("object exceeds read limit")

const DefaultMaxObjectBytes = 64 << 20

type Config struct {
	Endpoint       string
	Access         string
	Secret         string
	Bucket         string
	Region         string
	UseSSL         bool
	MaxObjectBytes int64
}

// Client keeps uploaded sources and processed images in a MinIO or S3 bucket.
type Client struct {
	minio    *minio.Client
	bucket   string
	maxBytes int64
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}

	return &Client{
		minio:    mc,
		bucket:   cfg.Bucket,
		maxBytes: maxBytes,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		// Another replica may have created it first.
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

// Ping reports whether the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.minio.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("ping object storage: %w", err)
	}
	return nil
}

// PresignedGetURL returns a time-limited link that downloads objectKey
// under the given filename.
func (c *Client) PresignedGetURL(ctx context.Context, objectKey, filename string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	u, err := c.minio.PresignedGetObject(ctx, c.bucket, objectKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return u.String(), nil
}

func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", objectKey, err)
}

func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, c.maxBytes+1))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("read object %s: %w", objectKey, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("read object %s: %w", objectKey, ErrObjectTooLarge)
	}
	return data, nil
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := c.minio.PutObject(
		ctx,
		c.bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

// RemoveObject deletes objectKey; missing objects are not an error.
func (c *Client) RemoveObject(ctx context.Context, objectKey string) error {
	err := c.minio.RemoveObject(ctx, c.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
