package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-converter/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	a.logger.Info("yt-converter starting",
		"version", version,
		"addr", cfg.Server.Addr,
		"root", cfg.Downloads.Root,
		"store", cfg.Store.Backend,
	)

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go a.sweeper.Run(sweepCtx, cfg.Retention.Interval)

	srv := server.NewHTTPServer(cfg.Server.Addr, a.handler(cfg), cfg.Server.ReadHeaderTimeout)
	return server.Serve(ctx, srv, cfg.Server.ShutdownTimeout, a.logger)
}
