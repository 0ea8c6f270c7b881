package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/app"
)

var serverAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCPI HTTP server",
	Long: `Start the OCPI HTTP server and background jobs.

The server will:
- Connect Postgres, Redis and Kafka when their URLs are configured
- Apply pending migrations if DATABASE_MIGRATE_ON_START is set
- Seed statically configured parties
- Shut down gracefully on SIGINT/SIGTERM, letting running handshakes finish

Examples:
  # Start with configuration from the environment
  server serve

  # Listen on a different address with debug logging
  server serve --addr :9090 --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverAddr, "addr", "", "listen address (default: OCPI_ADDR or :8080)")
}

func runServer(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverAddr != "" {
		cfg.Server.Addr = serverAddr
	}
	logger := newLogger(cfg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
