// Package cli provides the stagegen command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/stagegen/internal/config"
	"github.com/koustreak/stagegen/internal/logger"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type configKey struct{}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "stagegen",
		Short: "Generate dbt Data Vault staging models from CSV extracts",
		Long: `stagegen reads the header row of each CSV extract plus an optional schema
document, infers primary keys, foreign keys and payload columns, and renders
one automate_dv staging model per table.

Extracts can come from a local directory, an object store bucket or a live
Postgres/MySQL schema. Models are written to a directory, a bucket, or both.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logCfg := cfg.Log
			logCfg.Output = cmd.ErrOrStderr()
			log := logger.New(&logCfg)
			if cfg.File != "" {
				log.With().Str("file", cfg.File).Logger().Debug("loaded config file")
			}

			ctx := log.WithContext(cmd.Context())
			ctx = context.WithValue(ctx, configKey{}, cfg)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("stagegen {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./stagegen.yaml)")
	pf.String("log-level", "", "log level (debug|info|warn|error|disabled)")
	pf.String("log-format", "", "log format (json|console)")
	pf.String("materialization", "", "dbt materialization of generated models")
	pf.Int("workers", 0, "tables processed concurrently (0 = one per CPU)")
	pf.StringSlice("reserved", nil, "extra audit columns excluded from payloads")
	pf.String("db-driver", "", "database driver for --from-db (postgres|mysql)")
	pf.String("db-dsn", "", "database connection string for --from-db")
	pf.String("db-schema", "", "database schema to introspect")
	pf.String("store-endpoint", "", "object store endpoint (host:port)")
	pf.String("store-bucket", "", "object store bucket")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error", "disabled"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("db-driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"postgres", "mysql"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// getConfig returns the config loaded by the root command, or defaults.
func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return config.Default()
}
