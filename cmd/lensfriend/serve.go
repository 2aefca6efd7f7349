package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vbonduro/lensfriend/internal/config"
	"github.com/vbonduro/lensfriend/internal/logging"
	"github.com/vbonduro/lensfriend/internal/web"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the camera assistant over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			if addr != "" {
				cfg.ListenAddr = addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				a.manager.Run(ctx)
			}()

			server := web.NewServer(a.assistant, a.metrics, logger)
			err = server.ListenAndServe(ctx, cfg.ListenAddr)
			cancel()
			<-done
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

// setup loads and validates the configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}
