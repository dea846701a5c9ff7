package cli

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/stagegen/internal/bundle"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
)

func newAnalyzeCommand() *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the inferred table metadata as JSON",
		Long: `Run key and payload inference without rendering any model, and print the
metadata records to stdout in extract order.`,
		Example: `  stagegen analyze --input-dir ./raw | jq '.[].primaryKey'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)

			input, err := in.load(ctx, cfg)
			if err != nil {
				return err
			}

			gen, err := pipeline.New(cfg.Generator, logger.FromContext(ctx))
			if err != nil {
				return err
			}
			tables, err := gen.Analyze(ctx, input)
			if err != nil {
				return err
			}

			data, err := bundle.MarshalTables(tables)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	in.register(cmd.Flags())
	return cmd
}
