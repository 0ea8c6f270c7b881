package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "OCPI roaming node: credentials registration and location data",
		Long: `Runs an OCPI node that registers with counterpart platforms through the
credentials handshake, authenticates their calls and accepts connector
updates on the eMSP locations module.

Configuration comes from environment variables. Our own roles and any
statically configured parties are read from the YAML file given by
--config or OCPI_CONFIG_FILE.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "platform YAML file (overrides OCPI_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if configPath != "" {
		pf, err := config.LoadPlatformFile(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Platform = pf
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Server.LogFormat, cfg.Server.LogLevel)
}
