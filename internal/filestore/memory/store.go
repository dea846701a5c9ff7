// Package memory is an in-process filestore.Store. It backs tests and
// dry runs where no object store is reachable.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/filestore"
)

type entry struct {
	data []byte
	info filestore.ObjectInfo
}

// Store keeps objects in maps keyed by bucket then key.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]entry
	now     func() time.Time
}

// New returns a Store containing the given empty buckets.
func New(buckets ...string) *Store {
	s := &Store{buckets: make(map[string]map[string]entry), now: time.Now}
	for _, b := range buckets {
		s.buckets[b] = make(map[string]entry)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ListObjects returns matching objects in key order.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.FromContext("failed to list objects", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs, ok := s.buckets[bucket]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", bucket)
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []filestore.ObjectInfo
	seenDir := make(map[string]bool)
	for _, k := range keys {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		if !opts.Recursive {
			rest := strings.TrimPrefix(k, opts.Prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				dir := opts.Prefix + rest[:i+1]
				if !seenDir[dir] {
					seenDir[dir] = true
					out = append(out, filestore.ObjectInfo{Key: dir, Size: -1, IsDir: true})
				}
				continue
			}
		}
		out = append(out, objs[k].info)
	}
	return out, nil
}

// GetObject returns a reader over a copy of the stored bytes.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	e, err := s.lookup(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	return &object{Reader: bytes.NewReader(e.data), info: &info}, nil
}

// StatObject returns the stored metadata.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	e, err := s.lookup(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	return &info, nil
}

// PutObject stores the content of r. A non-negative size must match the
// number of bytes read.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.FromContext("failed to put object", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read object content", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s: read %d bytes, expected %d", key, len(data), size)
	}

	sum := md5.Sum(data)
	info := filestore.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	objs, ok := s.buckets[bucket]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", bucket)
	}
	objs[key] = entry{data: data, info: info}
	return &info, nil
}

// Put is a test convenience that stores content and panics on failure.
func (s *Store) Put(bucket, key, content string) {
	if _, err := s.PutObject(context.Background(), bucket, key, strings.NewReader(content), int64(len(content)), filestore.PutOptions{}); err != nil {
		panic(err)
	}
}

// Content returns the stored bytes of key as a string.
func (s *Store) Content(bucket, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.buckets[bucket][key]
	return string(e.data), ok
}

func (s *Store) lookup(ctx context.Context, bucket, key string) (entry, error) {
	if err := ctx.Err(); err != nil {
		return entry{}, errs.FromContext("failed to get object", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, ok := s.buckets[bucket]
	if !ok {
		return entry{}, errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", bucket)
	}
	e, ok := objs[key]
	if !ok {
		return entry{}, errs.Newf(errs.ErrKindNotFound, "object %q does not exist", key)
	}
	return e, nil
}

type object struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *object) Close() error { return nil }

func (o *object) Info() *filestore.ObjectInfo { return o.info }
