// Package filestore defines the interface for object storage backends.
//
// stagegen reads CSV extracts and schema documents from a bucket prefix and
// publishes generated models under another prefix. Callers depend only on
// this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig()
//	cfg.Endpoint = "localhost:9000"
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	objs, err := store.ListObjects(ctx, cfg.Bucket, filestore.ListOptions{Prefix: "raw/", Recursive: true})
package filestore

import (
	"context"
	"io"
)

// Store is the single interface all object storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// ListObjects returns the objects in bucket that match opts, in key order.
	// Virtual directory entries (common prefixes) are included when opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject writes size bytes from r to key inside bucket, replacing
	// any existing object. size may be -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)
}
