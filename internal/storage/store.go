package storage

import (
	"context"
	"time"
)

// ObjectStore is what the API and worker need from a bucket.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
	Ping(ctx context.Context) error
}

// Presigner is implemented by stores that can hand out direct download links.
type Presigner interface {
	PresignedGetURL(ctx context.Context, objectKey, filename string, expiry time.Duration) (string, error)
}

var (
	_ ObjectStore = (*Client)(nil)
	_ ObjectStore = (*MemoryClient)(nil)
	_ Presigner   = (*Client)(nil)
)
