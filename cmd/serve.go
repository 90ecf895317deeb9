package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(env.Services, server.Options{
			Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
			CORSOrigins: cfg.Server.CORSOrigins,
			PresenceTTL: time.Duration(cfg.Server.PresenceTTLSecs) * time.Second,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(ctx) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutS)*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default server.port)")
	rootCmd.AddCommand(serveCmd)
}
