package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/logging"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{
			name: "valid yaml config",
			file: "config.yaml",
			content: `
engine:
  host: gvm.internal
  port: 9390
  username: scanner
  password: secret
  request_timeout: 2m
scanning:
  default_profile: discovery
api:
  port: 9000
`,
		},
		{
			name: "valid json config",
			file: "config.json",
			content: `{
  "engine": {"host": "gvm.internal", "username": "scanner"},
  "api": {"listen_addr": "0.0.0.0"}
}`,
		},
		{
			name: "invalid yaml syntax",
			file: "config.yaml",
			content: `
engine:
  port: invalid
`,
			wantErr: true,
		},
		{
			name: "unknown default profile",
			file: "config.yaml",
			content: `
scanning:
  default_profile: thorough
`,
			wantErr: true,
		},
		{
			name: "missing engine host",
			file: "config.yaml",
			content: `
engine:
  host: ""
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			cfg, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cfg == nil {
				t.Error("Load() returned nil config")
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
engine:
  host: gvm.internal
  request_timeout: 2m
  parse_responses: true
scanning:
  default_profile: discovery
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Host != "gvm.internal" {
		t.Errorf("Expected engine host gvm.internal, got %s", cfg.Engine.Host)
	}
	if cfg.Engine.RequestTimeout != 2*time.Minute {
		t.Errorf("Expected request timeout 2m, got %v", cfg.Engine.RequestTimeout)
	}
	if !cfg.Engine.ParseResponses {
		t.Error("Expected parse_responses to be enabled")
	}
	if cfg.Engine.Port != DefaultEnginePort {
		t.Errorf("Expected default engine port %d, got %d", DefaultEnginePort, cfg.Engine.Port)
	}
	id, ok := cfg.ProfileConfigID("")
	if !ok || id != DiscoveryConfigID {
		t.Errorf("Expected default profile to resolve to discovery config, got %s", id)
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Engine.Port != DefaultEnginePort {
		t.Errorf("Expected default config, got port %d", cfg.Engine.Port)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Scanning.PortListID != DefaultPortListID {
		t.Errorf("Expected default port list %s, got %s", DefaultPortListID, cfg.Scanning.PortListID)
	}
	if cfg.Scanning.ScannerPrefix != "openvas" {
		t.Errorf("Expected scanner prefix openvas, got %s", cfg.Scanning.ScannerPrefix)
	}
	if cfg.Scanning.Profiles["full"] != FullAndFastConfigID || cfg.Scanning.Profiles["fast"] != FullAndFastConfigID {
		t.Error("full and fast profiles should map to the Full and fast config")
	}
	if cfg.Logging.Level != logging.LevelInfo {
		t.Errorf("Expected info log level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"engine port out of range", func(c *Config) { c.Engine.Port = 70000 }, "Config.Engine.Port"},
		{"zero request timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }, "Config.Engine.RequestTimeout"},
		{"empty profiles", func(c *Config) { c.Scanning.Profiles = map[string]string{} }, "Config.Scanning.Profiles"},
		{"rate limit without rate", func(c *Config) { c.API.RateLimit.RequestsPerSecond = 0 }, "api.rate_limit.requests_per_second"},
		{"rate limit without burst", func(c *Config) { c.API.RateLimit.BurstSize = 0 }, "api.rate_limit.burst_size"},
		{"malformed trusted proxy", func(c *Config) { c.API.TrustedProxies = []string{"10.0.0.1"} }, "api.trusted_proxies"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"missing ca file", func(c *Config) { c.Engine.CAFile = "/nonexistent/ca.pem" }, "engine.ca_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Errorf("Expected validation code, got %s", errors.GetCode(err))
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateDisabledRateLimitIgnoresBurst(t *testing.T) {
	cfg := Default()
	cfg.API.RateLimit.Enabled = false
	cfg.API.RateLimit.BurstSize = 0
	cfg.API.TrustedProxies = []string{"10.0.0.0/8", "::1/128"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"engine host", func(c *Config) { c.Engine.Host = "" }, "Config.Engine.Host"},
		{"engine username", func(c *Config) { c.Engine.Username = "" }, "Config.Engine.Username"},
		{"port list", func(c *Config) { c.Scanning.PortListID = "" }, "Config.Scanning.PortListID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !errors.IsCode(err, errors.CodeConfiguration) {
				t.Errorf("Expected configuration code, got %s", errors.GetCode(err))
			}
			if !strings.Contains(err.Error(), tt.field) || !strings.Contains(err.Error(), "missing") {
				t.Errorf("Expected error to report %s missing, got %v", tt.field, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gvmscan.yaml")
	cfg := Default()
	cfg.Engine.Host = "10.1.1.1"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Engine.Host != "10.1.1.1" {
		t.Errorf("Expected host 10.1.1.1, got %s", loaded.Engine.Host)
	}
}

func TestAddresses(t *testing.T) {
	cfg := Default()
	if got := cfg.GetEngineAddress(); got != "127.0.0.1:9390" {
		t.Errorf("Unexpected engine address %s", got)
	}
	cfg.API.ListenAddr = "::1"
	if got := cfg.GetAPIAddress(); got != "[::1]:8000" {
		t.Errorf("Unexpected API address %s", got)
	}
}
