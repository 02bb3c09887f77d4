package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

func newServeCmd(opts *RootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			log, err := newLogger(cfg.Log, false)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := NewApp(ctx, cfg, log)
			if err != nil {
				log.Error("failed to initialise application", logging.Err(err))
				return err
			}
			defer app.Close()

			if opts.ConfigPath != "" {
				err := config.Watch(opts.ConfigPath, app.Reload, func(err error) {
					log.Warn("ignoring invalid configuration change", logging.Err(err))
				})
				if err != nil {
					log.Warn("config hot reload disabled", logging.Err(err))
				}
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}
