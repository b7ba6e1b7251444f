// Package config loads server settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Port int

	// DBDriver is "sqlite" or "mysql".
	DBDriver string
	DBPath   string
	MySQLDSN string

	// RedisAddr enables the shared balance cache when set.
	RedisAddr string
	CacheTTL  time.Duration

	LogLevel  string
	LogFormat string

	CORSOrigin string

	// AuditSchedule is a cron spec for the ledger audit; empty disables it.
	AuditSchedule string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}
	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Port:          port,
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBPath:        getEnv("DB_PATH", "./data/ledger.db"),
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CacheTTL:      ttl,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		CORSOrigin:    getEnv("CORS_ORIGIN", "*"),
		AuditSchedule: getEnv("AUDIT_SCHEDULE", "@every 1h"),
	}
	// An explicitly empty AUDIT_SCHEDULE disables the audit.
	if v, ok := os.LookupEnv("AUDIT_SCHEDULE"); ok && v == "" {
		cfg.AuditSchedule = ""
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN is required when DB_DRIVER=mysql")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or mysql)", cfg.DBDriver)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
