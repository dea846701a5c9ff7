package source

import (
	"context"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/filestore"
	"github.com/koustreak/stagegen/internal/filestore/minio"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
)

// storeFetchLimit bounds concurrent header downloads.
const storeFetchLimit = 8

// OpenStore connects to the configured object store.
func OpenStore(ctx context.Context, cfg filestore.Config) (filestore.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported store provider %q", cfg.Provider)
	}
}

// FromStore reads the header of every *.csv object directly under prefix,
// in key order, plus the schema document stored next to them. Only the
// first CSV record of each object is downloaded.
func FromStore(ctx context.Context, store filestore.Store, bucket, prefix string) (pipeline.Input, error) {
	log := logger.FromContext(ctx)

	dir := strings.Trim(prefix, "/")
	if dir != "" {
		dir += "/"
	}
	objs, err := store.ListObjects(ctx, bucket, filestore.ListOptions{Prefix: dir})
	if err != nil {
		return pipeline.Input{}, err
	}

	var (
		keys   []string
		schema schemaPick
	)
	for _, o := range objs {
		switch {
		case o.IsDir:
		case isExtract(o.Name()):
			keys = append(keys, o.Key)
		default:
			schema.offer(o.Name(), o.Key)
		}
	}
	sortNames(keys)
	schemaKey := schema.found

	extracts := make([]catalog.Extract, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(storeFetchLimit)
	for i, key := range keys {
		g.Go(func() error {
			cols, err := readHeaderObject(gctx, store, bucket, key)
			if err != nil {
				return err
			}
			name := filestore.ObjectInfo{Key: key}.Name()
			extracts[i] = catalog.Extract{FileName: name, Columns: cols}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Input{}, err
	}

	in := pipeline.Input{Extracts: extracts}
	if schemaKey != "" {
		data, err := readObject(ctx, store, bucket, schemaKey)
		if err != nil {
			return pipeline.Input{}, err
		}
		in.Schema = data
	}

	log.With().Str("bucket", bucket).Str("prefix", dir).Int("extracts", len(extracts)).Str("schema", schemaKey).Logger().
		Debug("loaded extracts from object store")
	return in, nil
}

func readHeaderObject(ctx context.Context, store filestore.Store, bucket, key string) ([]string, error) {
	obj, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	cols, err := catalog.ReadHeader(obj)
	if err != nil {
		return nil, withFile(err, key)
	}
	return cols, nil
}

func readObject(ctx context.Context, store filestore.Store, bucket, key string) ([]byte, error) {
	obj, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "read "+key, err)
	}
	return data, nil
}
