// Package sink publishes a generated bundle: every staging model plus a
// metadata.json with the inferred table metadata.
package sink

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/koustreak/stagegen/internal/bundle"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/filestore"
	"github.com/koustreak/stagegen/internal/logger"
)

// Sink writes a bundle somewhere and returns where each artifact went, in
// bundle order with metadata.json last.
type Sink interface {
	Write(ctx context.Context, b *bundle.Bundle) ([]string, error)
}

// artifact is one named blob to publish.
type artifact struct {
	name        string
	contentType string
	data        []byte
}

func artifacts(b *bundle.Bundle) ([]artifact, error) {
	meta, err := b.MetadataJSON()
	if err != nil {
		return nil, err
	}
	out := make([]artifact, 0, len(b.Files)+1)
	for _, f := range b.Files {
		out = append(out, artifact{name: f.FileName, contentType: "application/sql", data: []byte(f.Content)})
	}
	return append(out, artifact{name: bundle.MetadataFileName, contentType: "application/json", data: meta}), nil
}

// Dir writes artifacts into a local directory, creating it if needed.
type Dir struct {
	Path string
}

// Write implements Sink. Every artifact is first written to a temporary
// file next to its target; only when all of them are staged are they
// renamed into place, so a failed or cancelled write publishes nothing.
func (d Dir) Write(ctx context.Context, b *bundle.Bundle) ([]string, error) {
	arts, err := artifacts(b)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, fsError(err, "create output directory "+d.Path)
	}

	var pending []stagedFile
	defer func() {
		for _, f := range pending {
			_ = os.Remove(f.tmp)
		}
	}()
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			return nil, errs.FromContext("writing output cancelled", err)
		}
		f, err := stageFile(filepath.Join(d.Path, a.name), a.data)
		if err != nil {
			return nil, err
		}
		pending = append(pending, f)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.FromContext("writing output cancelled", err)
	}

	written := make([]string, 0, len(pending))
	for len(pending) > 0 {
		f := pending[0]
		if err := os.Rename(f.tmp, f.path); err != nil {
			return written, fsError(err, "rename "+f.path)
		}
		pending = pending[1:]
		written = append(written, f.path)
	}

	logger.FromContext(ctx).With().Str("dir", d.Path).Int("files", len(written)).Logger().Info("wrote staging models")
	return written, nil
}

// stagedFile is a fully written temporary file waiting to replace path.
type stagedFile struct {
	tmp  string
	path string
}

func stageFile(p string, data []byte) (stagedFile, error) {
	if fi, err := os.Lstat(p); err == nil && fi.IsDir() {
		return stagedFile{}, errs.Newf(errs.ErrKindInvalidInput, "output path %s is a directory", p)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return stagedFile{}, fsError(err, "create "+p)
	}
	f := stagedFile{tmp: tmp.Name(), path: p}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(f.tmp)
		return stagedFile{}, fsError(err, "write "+p)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(f.tmp)
		return stagedFile{}, fsError(err, "chmod "+p)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(f.tmp)
		return stagedFile{}, fsError(err, "close "+p)
	}
	return f, nil
}

// Store uploads artifacts under Prefix in Bucket.
type Store struct {
	Store  filestore.Store
	Bucket string
	Prefix string
}

// Write implements Sink.
func (s Store) Write(ctx context.Context, b *bundle.Bundle) ([]string, error) {
	arts, err := artifacts(b)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(arts))
	for _, a := range arts {
		key := filestore.JoinKey(s.Prefix, a.name)
		_, err := s.Store.PutObject(ctx, s.Bucket, key, bytes.NewReader(a.data), int64(len(a.data)),
			filestore.PutOptions{ContentType: a.contentType})
		if err != nil {
			return written, err
		}
		written = append(written, key)
	}

	logger.FromContext(ctx).With().Str("bucket", s.Bucket).Str("prefix", s.Prefix).Int("files", len(written)).Logger().
		Info("published staging models")
	return written, nil
}

func fsError(err error, msg string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	default:
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}
}
