package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
)

// FromDir reads the header of every *.csv file directly inside dir, in
// name order. schemaPath names the schema document; when empty, the first
// of SchemaFileNames present next to the extracts is used.
func FromDir(ctx context.Context, dir, schemaPath string) (pipeline.Input, error) {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return pipeline.Input{}, fsError(err, "read input directory "+dir)
	}

	var (
		names  []string
		schema schemaPick
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if isExtract(e.Name()) {
			names = append(names, e.Name())
		}
		schema.offer(e.Name(), filepath.Join(dir, e.Name()))
	}
	sortNames(names)
	if schemaPath == "" {
		schemaPath = schema.found
	}

	var in pipeline.Input
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return pipeline.Input{}, errs.FromContext("reading extracts cancelled", err)
		}
		cols, err := readHeaderFile(filepath.Join(dir, name))
		if err != nil {
			return pipeline.Input{}, err
		}
		in.Extracts = append(in.Extracts, catalog.Extract{FileName: name, Columns: cols})
	}

	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return pipeline.Input{}, fsError(err, "read schema document "+schemaPath)
		}
		in.Schema = data
	}

	log.With().Str("dir", dir).Int("extracts", len(in.Extracts)).Str("schema", schemaPath).Logger().
		Debug("loaded extracts from directory")
	return in, nil
}

func readHeaderFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fsError(err, "open extract "+p)
	}
	defer f.Close()

	cols, err := catalog.ReadHeader(f)
	if err != nil {
		return nil, withFile(err, filepath.Base(p))
	}
	return cols, nil
}

// withFile prefixes header errors with the extract they came from.
func withFile(err error, name string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		e.Message = name + ": " + e.Message
	}
	return err
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
