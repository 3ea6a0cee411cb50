// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/moneyflow and cmd/moneyflow-worker.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"moneyflow/internal/backend"
	"moneyflow/internal/config"
	applog "moneyflow/internal/log"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the process default.
func SetupLogger(level string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured store backend.
// Returns the backend or exits the process on failure.
func OpenBackend(logger *applog.Logger, cfg *config.Config) backend.Backend {
	b, err := backend.Open(logger.WithComponent(applog.ComponentBackend).Logger, backend.Config{
		Type:         backend.Type(cfg.DataBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
		PostgresDSN:  cfg.PostgresDSN,
	})
	if err != nil {
		logger.Error("Failed to open store backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return b
}
