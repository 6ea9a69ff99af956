package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment  string
	LogLevel     slog.Level
	RedisURL     string
	ProfilePath  string        // empty means the built-in profile
	Seed         uint64        // 0 means time-seeded sessions
	DecayRate    float64       // temporary modifier decay per turn
	HistoryLimit int           // stat change history ceiling
	WorkerID     string        // generated when empty
	SessionTTL   time.Duration // expiry of stored session records
}

// Load reads the configuration from the environment. Numeric variables that
// are set but unparseable are errors.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		ProfilePath: getEnv("PROFILE_PATH", ""),
		WorkerID:    getEnv("WORKER_ID", ""),
	}

	var err error
	if cfg.Seed, err = strconv.ParseUint(getEnv("SEED", "0"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}
	if cfg.DecayRate, err = strconv.ParseFloat(getEnv("DECAY_RATE", "0.9"), 64); err != nil {
		return nil, fmt.Errorf("invalid DECAY_RATE: %w", err)
	}
	if cfg.DecayRate <= 0 || cfg.DecayRate >= 1 {
		return nil, fmt.Errorf("invalid DECAY_RATE: %v must be between 0 and 1", cfg.DecayRate)
	}
	if cfg.HistoryLimit, err = strconv.Atoi(getEnv("HISTORY_LIMIT", "50")); err != nil {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: %d must be positive", cfg.HistoryLimit)
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
