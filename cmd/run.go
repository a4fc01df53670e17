package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgflow/pkg/bus"
	"tgflow/pkg/gateway"
	"tgflow/pkg/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot with the configured transport",
	Long:  "Receives updates by long polling or webhook and serves /healthz and /readyz.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, appLogger, err := loadRuntimeConfig()
		if err != nil {
			return err
		}
		log := appLogger.With("component", "cmd.run")

		if err := cfg.Validate(); err != nil {
			log.Error("Configuration invalid", "error", err)
			return err
		}

		client, err := newAPIClient(cfg, appLogger)
		if err != nil {
			return err
		}

		events := bus.New()
		defer events.Close()

		b, err := newDemoBot(cfg, client, events, session.NewMemoryStore(), appLogger)
		if err != nil {
			return fmt.Errorf("initialize bot: %w", err)
		}

		svc, err := gateway.NewService(cfg, b, client, events, appLogger)
		if err != nil {
			return fmt.Errorf("initialize gateway service: %w", err)
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Gateway started", "transport", cfg.Transport.Mode)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}
		slog.Default().Info("Gateway stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
