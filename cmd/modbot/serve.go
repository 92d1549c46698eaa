package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/modbot/internal/app"
	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/constants"
	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/version"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start modbot (main command)",
	Long: `Start modbot with the specified configuration.
This connects the enabled platforms, restores auto-delete rules and channel
state, starts the sweeper and handles graceful shutdown on SIGINT/SIGTERM.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional(constants.DefaultEnvPath); err != nil {
		fmt.Printf("⚠️ Failed to load .env file: %v\n", err)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = constants.DefaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errors := cfg.Validate(); len(errors) > 0 {
		fmt.Printf("❌ Configuration validation failed:\n")
		for _, e := range errors {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("🚀 Starting modbot",
		logger.Field{Key: "version", Value: version.String()},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "discord", Value: cfg.Discord.Enabled},
		logger.Field{Key: "telegram", Value: cfg.Telegram.Enabled},
		logger.Field{Key: "rules_path", Value: cfg.AutoDelete.RulesPath},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, log)
	if err := application.Run(ctx); err != nil {
		log.Error("Application stopped with error", err)
		os.Exit(1)
	}

	log.Info("👋 modbot stopped")
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
