package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
	"github.com/koustreak/stagegen/internal/sink"
	"github.com/koustreak/stagegen/internal/source"
)

func newGenerateCommand() *cobra.Command {
	var (
		in       inputFlags
		outDir   string
		toBucket bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render one staging model per extract",
		Long: `Render one automate_dv staging model per extract plus a metadata.json
describing the inferred keys and columns.

Nothing is written unless every table succeeds.`,
		Example: `  # Local extracts, schema.yml picked up from the same directory
  stagegen generate --input-dir ./raw --out ./models/staging

  # Introspect two Postgres tables and publish to the configured bucket
  stagegen generate --from-db --db-dsn postgres://localhost/shop --tables orders,customers --to-bucket`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" && !toBucket {
				return errs.New(errs.ErrKindInvalidInput, "nothing to write: pass --out or --to-bucket")
			}

			ctx := cmd.Context()
			cfg := getConfig(ctx)
			log := logger.FromContext(ctx)

			input, err := in.load(ctx, cfg)
			if err != nil {
				return err
			}

			gen, err := pipeline.New(cfg.Generator, log)
			if err != nil {
				return err
			}
			b, err := gen.Generate(ctx, input)
			if err != nil {
				return err
			}

			var sinks []sink.Sink
			if outDir != "" {
				sinks = append(sinks, sink.Dir{Path: outDir})
			}
			if toBucket {
				store, err := source.OpenStore(ctx, cfg.Store)
				if err != nil {
					return err
				}
				defer store.Close()
				sinks = append(sinks, sink.Store{Store: store, Bucket: cfg.Store.Bucket, Prefix: cfg.Store.OutputPrefix})
			}

			for _, s := range sinks {
				written, err := s.Write(ctx, b)
				if err != nil {
					return err
				}
				for _, p := range written {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
				}
			}
			return nil
		},
	}

	in.register(cmd.Flags())
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write models and metadata.json into")
	cmd.Flags().BoolVar(&toBucket, "to-bucket", false, "publish to store.bucket under store.output_prefix")

	return cmd
}
