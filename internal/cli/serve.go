package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
	"github.com/koustreak/stagegen/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generator over HTTP",
		Long: `Start the HTTP API:

  POST /v1/generate   multipart (csv parts + schema part) or JSON body
  POST /v1/analyze    same input, metadata only
  GET  /healthz

The server drains in-flight requests on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := getConfig(ctx)
			log := logger.FromContext(ctx)

			gen, err := pipeline.New(cfg.Generator, log)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg.Server, gen, log)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	return cmd
}
