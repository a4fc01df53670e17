package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tgflow",
	Short: "Middleware-driven Telegram bot runtime",
	Long: `tgflow receives Telegram Bot API updates by long polling or webhook,
normalizes them, and runs them through a composable middleware chain.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
