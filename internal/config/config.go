// Package config loads the chat server's configuration from the
// environment, an optional .env file, and command-line overrides.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable the server reads at startup. Priority:
// CLI args > environment variables > .env file > defaults.
type Config struct {
	Addr           string        `env:"CHAT_ADDR" envDefault:":8888"`
	DBPath         string        `env:"CHAT_DB_PATH" envDefault:"data/chattcp.db"`
	MaxSessions    int           `env:"CHAT_MAX_SESSIONS" envDefault:"1000"`
	SessionTimeout time.Duration `env:"CHAT_SESSION_TIMEOUT" envDefault:"1h"`
	ReapInterval   time.Duration `env:"CHAT_REAP_INTERVAL" envDefault:"1m"`

	MetricsAddr string `env:"CHAT_METRICS_ADDR" envDefault:":9090"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from .env (if present) and the environment,
// then validates the result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the server
// unable to start or misbehave silently.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CHAT_ADDR is required")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("CHAT_MAX_SESSIONS must be > 0, got %d", c.MaxSessions)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("CHAT_SESSION_TIMEOUT must be > 0, got %s", c.SessionTimeout)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("CHAT_REAP_INTERVAL must be > 0, got %s", c.ReapInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}
	return nil
}

// Log emits the resolved configuration as a structured log line.
func (c *Config) Log(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("db_path", c.DBPath).
		Int("max_sessions", c.MaxSessions).
		Dur("session_timeout", c.SessionTimeout).
		Dur("reap_interval", c.ReapInterval).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
