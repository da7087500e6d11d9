package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime configuration for the chat server.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Storage. When DB_DSN is set the Postgres backend is used; otherwise
	// the in-memory backend with SNAPSHOT_PATH persistence.
	DatabaseDSN  string `env:"DB_DSN"`
	SnapshotPath string `env:"SNAPSHOT_PATH" envDefault:"chatsphere.json"`

	// Redis event bridge. Empty disables cross-instance fan-out.
	RedisAddr string `env:"REDIS_ADDR"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Gateway
	TypingWindow  time.Duration `env:"TYPING_WINDOW" envDefault:"3s"`
	MessageWindow int           `env:"MESSAGE_WINDOW" envDefault:"100"`
}

// Load parses environment variables into Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.TypingWindow <= 0 {
		return nil, fmt.Errorf("TYPING_WINDOW must be positive")
	}
	if cfg.MessageWindow <= 0 {
		return nil, fmt.Errorf("MESSAGE_WINDOW must be positive")
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
