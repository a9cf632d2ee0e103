package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/logging"
)

// Well-known engine identifiers shipped with every GVM feed.
const (
	FullAndFastConfigID   = "daba56c8-73ec-11df-a475-002264764cea"
	DiscoveryConfigID     = "698f691e-7489-11df-9d8c-002264764cea"
	DefaultPortListID     = "33d0cd82-57c6-11e1-8ed1-406186ea4fc5"
	DefaultScannerPrefix  = "openvas"
	DefaultEnginePort     = 9390
	defaultConfigDirPerm  = 0750
	defaultConfigFilePerm = 0600
)

// Config represents the complete gvmscan configuration
type Config struct {
	// Scan engine connection
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Scan profile and provisioning defaults
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// EngineConfig holds the management protocol endpoint and credentials.
type EngineConfig struct {
	Host     string `yaml:"host" json:"host" validate:"required"`
	Port     int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"-"`

	// CA bundle used to verify the engine certificate
	CAFile string `yaml:"ca_file" json:"ca_file"`

	// GVM installs ship a self-signed certificate by default
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout" validate:"gt=0"`

	// Upper bound for one whole inbound request, all engine calls included
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`

	// Hand parsed element trees instead of raw XML text to the orchestrator
	ParseResponses bool `yaml:"parse_responses" json:"parse_responses"`
}

// ScanningConfig holds scan provisioning settings
type ScanningConfig struct {
	// Profile used when a request names none
	DefaultProfile string `yaml:"default_profile" json:"default_profile" validate:"required"`

	// Profile name to engine scan config id
	Profiles map[string]string `yaml:"profiles" json:"profiles" validate:"required,min=1,dive,keys,required,endkeys,required"`

	// Port list bound to newly created targets
	PortListID string `yaml:"port_list_id" json:"port_list_id" validate:"required"`

	// Preferred scanner name prefix, matched case-insensitively
	ScannerPrefix string `yaml:"scanner_prefix" json:"scanner_prefix"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"required"`

	// Listen port
	Port int `yaml:"port" json:"port" validate:"min=1,max=65535"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// Maximum request body size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size" validate:"gt=0"`

	// bcrypt hashes of accepted X-API-Key values; empty disables the check
	APIKeyHashes []string `yaml:"api_key_hashes" json:"-"`

	// Reverse proxies, as CIDRs, whose X-Forwarded-For is believed when
	// keying rate limits and access logs. Empty trusts none.
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// Rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Enable rate limiting
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Requests per second
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`

	// Burst size
	BurstSize int `yaml:"burst_size" json:"burst_size" validate:"gte=0"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Host:               "127.0.0.1",
			Port:               DefaultEnginePort,
			Username:           "admin",
			InsecureSkipVerify: true,
			DialTimeout:        10 * time.Second,
			RequestTimeout:     60 * time.Second,
		},
		Scanning: ScanningConfig{
			DefaultProfile: "full",
			Profiles: map[string]string{
				"full":      FullAndFastConfigID,
				"fast":      FullAndFastConfigID,
				"discovery": DiscoveryConfigID,
			},
			PortListID:    DefaultPortListID,
			ScannerPrefix: DefaultScannerPrefix,
		},
		API: APIConfig{
			ListenAddr:     "127.0.0.1",
			Port:           8000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   90 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// JSON is a subset of YAML, so both go through the YAML decoder.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), defaultConfigDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, defaultConfigFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return errors.ErrConfigMissing(fe.Namespace())
			}
			return errors.ErrConfigInvalid(fe.Namespace(), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
	}

	if _, ok := c.Scanning.Profiles[c.Scanning.DefaultProfile]; !ok {
		return errors.ErrConfigInvalid("scanning.default_profile", c.Scanning.DefaultProfile)
	}

	if c.API.RateLimit.Enabled {
		if c.API.RateLimit.RequestsPerSecond <= 0 {
			return errors.ErrConfigInvalid("api.rate_limit.requests_per_second", c.API.RateLimit.RequestsPerSecond)
		}
		// A zero burst admits no request at all.
		if c.API.RateLimit.BurstSize < 1 {
			return errors.ErrConfigInvalid("api.rate_limit.burst_size", c.API.RateLimit.BurstSize)
		}
	}

	for _, cidr := range c.API.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return errors.ErrConfigInvalid("api.trusted_proxies", cidr)
		}
	}

	if c.Engine.CAFile != "" {
		if _, err := os.Stat(c.Engine.CAFile); err != nil {
			return errors.ErrConfigInvalid("engine.ca_file", c.Engine.CAFile)
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}

	if c.Logging.Format != logging.FormatText && c.Logging.Format != logging.FormatJSON {
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	return nil
}

// ProfileConfigID returns the engine scan config id for a profile name.
// An empty name selects the default profile.
func (c *Config) ProfileConfigID(name string) (string, bool) {
	if name == "" {
		name = c.Scanning.DefaultProfile
	}
	id, ok := c.Scanning.Profiles[name]
	return id, ok
}

// GetEngineAddress returns the host:port of the management protocol endpoint
func (c *Config) GetEngineAddress() string {
	return net.JoinHostPort(c.Engine.Host, strconv.Itoa(c.Engine.Port))
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return net.JoinHostPort(c.API.ListenAddr, strconv.Itoa(c.API.Port))
}
