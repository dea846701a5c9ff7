package cli

import (
	"context"
	"os"

	"github.com/spf13/pflag"

	"github.com/koustreak/stagegen/internal/config"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
	"github.com/koustreak/stagegen/internal/source"
)

// inputFlags selects where extracts come from. Exactly one of inputDir,
// fromBucket and fromDB must be set.
type inputFlags struct {
	inputDir   string
	schema     string
	fromBucket bool
	fromDB     bool
	tables     []string
}

func (f *inputFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.inputDir, "input-dir", "i", "", "directory of CSV extracts")
	fs.StringVarP(&f.schema, "schema", "s", "", "schema document (default: schema.yml next to the extracts)")
	fs.BoolVar(&f.fromBucket, "from-bucket", false, "read extracts from store.bucket under store.input_prefix")
	fs.BoolVar(&f.fromDB, "from-db", false, "introspect the configured database instead of reading CSV files")
	fs.StringSliceVar(&f.tables, "tables", nil, "with --from-db, only these tables")
}

func (f *inputFlags) validate() error {
	n := 0
	for _, set := range []bool{f.inputDir != "", f.fromBucket, f.fromDB} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return errs.New(errs.ErrKindInvalidInput, "no input: pass --input-dir, --from-bucket or --from-db")
	case n > 1:
		return errs.New(errs.ErrKindInvalidInput, "--input-dir, --from-bucket and --from-db are mutually exclusive")
	case len(f.tables) > 0 && !f.fromDB:
		return errs.New(errs.ErrKindInvalidInput, "--tables only applies with --from-db")
	case f.fromDB && f.schema != "":
		return errs.New(errs.ErrKindInvalidInput, "--schema cannot be combined with --from-db; keys come from the database")
	}
	return nil
}

// load reads the selected source into a pipeline input.
func (f *inputFlags) load(ctx context.Context, cfg *config.Config) (pipeline.Input, error) {
	if err := f.validate(); err != nil {
		return pipeline.Input{}, err
	}
	log := logger.FromContext(ctx)

	switch {
	case f.fromDB:
		db, err := source.OpenDatabase(ctx, cfg.Database)
		if err != nil {
			return pipeline.Input{}, err
		}
		defer db.Close()

		if cfg.Database.QueryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Database.QueryTimeout)
			defer cancel()
		}
		log.With().Str("driver", string(cfg.Database.Driver)).Str("schema", cfg.Database.Schema).Logger().
			Info("introspecting database")
		return source.FromDatabase(ctx, db, cfg.Database.Schema, f.tables...)

	case f.fromBucket:
		store, err := source.OpenStore(ctx, cfg.Store)
		if err != nil {
			return pipeline.Input{}, err
		}
		defer store.Close()

		in, err := source.FromStore(ctx, store, cfg.Store.Bucket, cfg.Store.InputPrefix)
		if err != nil {
			return pipeline.Input{}, err
		}
		if f.schema != "" {
			data, err := os.ReadFile(f.schema)
			if err != nil {
				return pipeline.Input{}, errs.Wrap(errs.ErrKindNotFound, "read schema "+f.schema, err)
			}
			in.Schema = data
		}
		return in, nil

	default:
		return source.FromDir(ctx, f.inputDir, f.schema)
	}
}
