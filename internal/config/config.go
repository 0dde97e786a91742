// Package config provides flowhost configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds flowhost configuration.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"flowhost"`

	// HTTP listener (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	RoutePrefix string `envconfig:"ROUTE_PREFIX" default:"api"`
	// ShutdownTimeout bounds graceful shutdown, including open streams.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Flows
	CatalogFile    string        `envconfig:"FLOW_CATALOG_FILE"`
	RequestTimeout time.Duration `envconfig:"FLOW_REQUEST_TIMEOUT" default:"30s"`
	DemoFlows      bool          `envconfig:"DEMO_FLOWS" default:"false"`

	// COMMS: remote flows and invocation events. Empty disables both.
	COMMSURL     string `envconfig:"COMMS_URL"`
	EventSubject string `envconfig:"EVENT_SUBJECT"`

	// Database: API key store. Empty disables it.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// KeyTTL bounds the lifetime of keys issued by "keys create". Zero means no expiry.
	KeyTTL time.Duration `envconfig:"KEY_TTL"`

	// Platform keys for function and admin level triggers.
	FunctionKeys []string `envconfig:"FUNCTION_KEYS"`
	AdminKeys    []string `envconfig:"ADMIN_KEYS"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.FunctionKeys = trimKeys(c.FunctionKeys)
	c.AdminKeys = trimKeys(c.AdminKeys)
	return &c, nil
}

// ListenAddr returns HTTP_ADDR, or ":HTTP_PORT" when it is unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForServe checks required config when running the HTTP host.
func (c *Config) ValidateForServe() error {
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT must be between 1 and 65535", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - FLOW_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, keys).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	if c.KeyTTL < 0 {
		return fmt.Errorf("%s - KEY_TTL must not be negative", logPrefix)
	}
	return nil
}

func trimKeys(keys []string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
