package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var webhookInfoCmd = &cobra.Command{
	Use:   "webhook-info",
	Short: "Print the webhook status reported by the Bot API",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, appLogger, err := loadRuntimeConfig()
		if err != nil {
			return err
		}

		client, err := newAPIClient(cfg, appLogger)
		if err != nil {
			return err
		}

		info, err := client.GetWebhookInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("get webhook info: %w", err)
		}

		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("encode webhook info: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webhookInfoCmd)
}
