package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/config"
	"github.com/socialgravity/socialgravity/internal/logging"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sg",
	Short: "SocialGravity - simulate how audience personas react to a short video",
	Long: `SocialGravity sends a short video and an audience description to the
SocialGravity backend, follows the upload, conversion and analysis steps,
and shows how synthetic audience personas reacted.

Configuration comes from socialgravity.yaml, a .env file and SG_* variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("SG_CONFIG", "socialgravity.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "local database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// loadEnvironment reads .env, the config file and flags, then builds the logger.
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
