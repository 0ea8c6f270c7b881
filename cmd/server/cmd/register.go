package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/app"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

var registerRenew bool

var registerCmd = &cobra.Command{
	Use:   "register <CC*PID*ROLE>",
	Short: "Run one credentials handshake against a configured party",
	Long: `Run the credentials handshake for one party and wait for the result.

The party must already exist with a bootstrap token and versions URL,
either seeded from the platform file or created through the admin API.
The counterpart calls back during the exchange, so this is only useful
against a shared Postgres registry while the server is running.

Examples:
  server register NL*EXA*CPO
  server register NL*EXA*CPO --renew`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := domain.ParsePartyKey(args[0])
		if err != nil {
			return fmt.Errorf("invalid party key: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Register(ctx, key, registerRenew)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", key, state, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, state)
		return nil
	},
}

func init() {
	registerCmd.Flags().BoolVar(&registerRenew, "renew", false, "rotate credentials of an already registered party")
}
