package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neuromechanist/openwebui-piplines/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the pipelines HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			addr := a.cfg.Server.Address
			if serveAddr != "" {
				addr = serveAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{
				APIKey:          a.cfg.Server.APIKey,
				RequestTimeout:  a.cfg.Server.RequestTimeout,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			}, a.registry, a.metrics, a.logger)
			return srv.Run(ctx, addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")

	return serve
}
