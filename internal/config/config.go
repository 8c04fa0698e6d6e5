// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// DatabasePath is the SQLite database path. ":memory:" gives an
	// ephemeral database.
	DatabasePath string

	// LogLevel is a zap level string: debug, info, warn, error.
	LogLevel string

	// MaxConcurrency caps per-stage target applies.
	MaxConcurrency int

	// GlobalConcurrency caps applies across all rollouts. Zero disables
	// the ceiling.
	GlobalConcurrency int

	// DeployTimeout and SnapshotTimeout bound single calls to the
	// deployer and the health evaluator.
	DeployTimeout   time.Duration
	SnapshotTimeout time.Duration

	// DeployRetries and RevertRetries are per-target retry budgets on
	// top of the first attempt.
	DeployRetries int
	RevertRetries int
}

// Load reads configuration from a .env file (if present) and the OS
// environment. OS environment variables take precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:   getEnvOrDefault("STAGEGATE_LISTEN_ADDR", ":8080"),
		DatabasePath: getEnvOrDefault("STAGEGATE_DB_PATH", "stagegate.db"),
		LogLevel:     getEnvOrDefault("STAGEGATE_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxConcurrency, err = getEnvInt("STAGEGATE_MAX_CONCURRENCY", 8); err != nil {
		return cfg, err
	}
	if cfg.GlobalConcurrency, err = getEnvInt("STAGEGATE_GLOBAL_CONCURRENCY", 32); err != nil {
		return cfg, err
	}
	if cfg.DeployTimeout, err = getEnvDuration("STAGEGATE_DEPLOY_TIMEOUT", 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.SnapshotTimeout, err = getEnvDuration("STAGEGATE_SNAPSHOT_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.DeployRetries, err = getEnvInt("STAGEGATE_DEPLOY_RETRIES", 2); err != nil {
		return cfg, err
	}
	if cfg.RevertRetries, err = getEnvInt("STAGEGATE_REVERT_RETRIES", 3); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
