package config

import (
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SERVICE_NAME", "HTTP_ADDR", "HTTP_PORT", "ROUTE_PREFIX", "SHUTDOWN_TIMEOUT",
	"FLOW_CATALOG_FILE", "FLOW_REQUEST_TIMEOUT", "DEMO_FLOWS",
	"COMMS_URL", "EVENT_SUBJECT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH", "KEY_TTL",
	"FUNCTION_KEYS", "ADMIN_KEYS", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ServiceName != "flowhost" {
		t.Errorf("config:config_test - ServiceName = %q, want %q", cfg.ServiceName, "flowhost")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.ListenAddr() != ":8080" {
		t.Errorf("config:config_test - ListenAddr = %q, want :8080", cfg.ListenAddr())
	}
	if cfg.RoutePrefix != "api" {
		t.Errorf("config:config_test - RoutePrefix = %q, want api", cfg.RoutePrefix)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("config:config_test - ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.CatalogFile != "" || cfg.COMMSURL != "" || cfg.DatabaseURL != "" || cfg.EventSubject != "" {
		t.Errorf("config:config_test - optional integrations should be off by default: %+v", cfg)
	}
	if cfg.DemoFlows || cfg.RunMigrations {
		t.Error("config:config_test - expected DemoFlows and RunMigrations false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.KeyTTL != 0 {
		t.Errorf("config:config_test - KeyTTL = %v, want 0", cfg.KeyTTL)
	}
	if cfg.FunctionKeys != nil || cfg.AdminKeys != nil {
		t.Errorf("config:config_test - expected no platform keys, got %v %v", cfg.FunctionKeys, cfg.AdminKeys)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should be servable: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected ValidateForDB to require DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"SERVICE_NAME":         "jokes",
		"HTTP_ADDR":            "127.0.0.1:9090",
		"ROUTE_PREFIX":         "fn",
		"FLOW_CATALOG_FILE":    "/etc/flows.yaml",
		"FLOW_REQUEST_TIMEOUT": "10s",
		"DEMO_FLOWS":           "true",
		"COMMS_URL":            "nats://custom:4222",
		"EVENT_SUBJECT":        "custom.invoked",
		"DATABASE_URL":         "postgres://test@localhost/test",
		"RUN_MIGRATIONS":       "true",
		"MIGRATION_PATH":       "/tmp/migrations",
		"KEY_TTL":              "720h",
		"FUNCTION_KEYS":        "k1, k2,,",
		"ADMIN_KEYS":           "root",
		"LOG_LEVEL":            "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ServiceName != "jokes" || cfg.RoutePrefix != "fn" || cfg.CatalogFile != "/etc/flows.yaml" {
		t.Errorf("config:config_test - unexpected values: %+v", cfg)
	}
	if cfg.ListenAddr() != "127.0.0.1:9090" {
		t.Errorf("config:config_test - ListenAddr = %q", cfg.ListenAddr())
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if !cfg.DemoFlows || !cfg.RunMigrations {
		t.Error("config:config_test - expected DemoFlows and RunMigrations true")
	}
	if cfg.COMMSURL != "nats://custom:4222" || cfg.EventSubject != "custom.invoked" {
		t.Errorf("config:config_test - COMMS settings = %q %q", cfg.COMMSURL, cfg.EventSubject)
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - DB settings = %q %q", cfg.DatabaseURL, cfg.MigrationPath)
	}
	if cfg.KeyTTL != 720*time.Hour {
		t.Errorf("config:config_test - KeyTTL = %v, want 720h", cfg.KeyTTL)
	}
	if !reflect.DeepEqual(cfg.FunctionKeys, []string{"k1", "k2"}) {
		t.Errorf("config:config_test - FunctionKeys = %v", cfg.FunctionKeys)
	}
	if !reflect.DeepEqual(cfg.AdminKeys, []string{"root"}) {
		t.Errorf("config:config_test - AdminKeys = %v", cfg.AdminKeys)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - SlogLevel = %v", cfg.SlogLevel())
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv()
	os.Setenv("FLOW_REQUEST_TIMEOUT", "soon")
	defer clearEnv()

	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for invalid duration")
	}
}

func TestSlogLevel(t *testing.T) {
	levels := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range levels {
		c := &Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("config:config_test - SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateForServe(t *testing.T) {
	base := Config{HTTPPort: 8080, RequestTimeout: time.Second, ShutdownTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, true},
		{"bad port with addr", func(c *Config) { c.HTTPPort = 0; c.HTTPAddr = ":9000" }, false},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, true},
		{"migrations without db", func(c *Config) { c.RunMigrations = true }, true},
		{"migrations with db", func(c *Config) { c.RunMigrations = true; c.DatabaseURL = "postgres://x" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	c := Config{DatabaseURL: "postgres://x", KeyTTL: time.Hour}
	if err := c.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
	c.KeyTTL = -time.Hour
	if err := c.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error for negative KEY_TTL")
	}
}
