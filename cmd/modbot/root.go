package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modbot",
	Short: "modbot - chat moderation bot with per-channel auto-delete",
	Long: `modbot keeps Discord and Telegram channels tidy: each channel can have a
retention rule (keep the last N messages, delete messages older than T) that
the bot enforces continuously, surviving restarts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
}
