package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comigor/jobchat-go/internal/config"
	"github.com/comigor/jobchat-go/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jobchat",
		Short: "Job portal chat assistant: terminal widget, reference backend and saved jobs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				logger.L.Warn("failed to load .env file", "error", err)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newChatCmd(), newServeCmd(), newSavedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}
