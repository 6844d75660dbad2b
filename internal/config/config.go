// Package config provides configuration management for the Antigravity
// gateway. It handles loading and parsing YAML configuration files and
// provides structured access to application settings including server port,
// client API keys, credential sources, cooldown policy, and logging.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default policy values applied when the YAML file leaves them unset.
const (
	DefaultPort                = 8317
	DefaultCredsCacheSeconds   = 15
	DefaultCooldownGenericSec  = 60
	DefaultCooldownAuthSec     = 300
	DefaultCooldownRateSec     = 600
	DefaultReadIdleTimeoutSec  = 300
	DefaultRequestMaxBodyBytes = 64 << 20
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the TCP port the gateway listens on.
	Port int `yaml:"port"`

	// Host restricts the listen address; empty means all interfaces.
	Host string `yaml:"host,omitempty"`

	// APIKeys is a list of keys for authenticating clients to this gateway.
	// An empty list disables request authentication.
	APIKeys []string `yaml:"api-keys,omitempty"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug,omitempty"`

	// LoggingToFile writes logs to a rotated file instead of stderr.
	LoggingToFile bool `yaml:"logging-to-file,omitempty"`

	// LogDir overrides the directory used for rotated log files.
	LogDir string `yaml:"log-dir,omitempty"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `yaml:"metrics-enabled,omitempty"`

	// Credentials configures credential sources and load caching.
	Credentials CredentialsConfig `yaml:"credentials,omitempty"`

	// Cooldown configures failure-driven credential exclusion durations.
	Cooldown CooldownConfig `yaml:"cooldown,omitempty"`

	// Upstream configures upstream request behavior.
	Upstream UpstreamConfig `yaml:"upstream,omitempty"`
}

// CredentialsConfig describes where credential records are loaded from and
// how often the load may be recomputed.
type CredentialsConfig struct {
	// File is the file-backed credential source, used only when no
	// environment source is present. Empty selects the default path under
	// the user's home directory.
	File string `yaml:"file,omitempty"`

	// CacheSeconds bounds how often the store re-reads its sources.
	CacheSeconds int `yaml:"cache-seconds,omitempty"`
}

// CooldownConfig holds the per-failure-class cooldown durations in seconds.
// These are policy values, not protocol requirements.
type CooldownConfig struct {
	GenericSeconds   int `yaml:"generic-seconds,omitempty"`
	AuthSeconds      int `yaml:"auth-seconds,omitempty"`
	RateLimitSeconds int `yaml:"rate-limit-seconds,omitempty"`
}

// UpstreamConfig holds upstream call behavior settings.
type UpstreamConfig struct {
	// BaseURL overrides the upstream endpoint, mainly for tests.
	BaseURL string `yaml:"base-url,omitempty"`

	// ReadIdleTimeoutSeconds aborts a stream when no bytes arrive for this
	// long. <= 0 selects the default.
	ReadIdleTimeoutSeconds int `yaml:"read-idle-timeout-seconds,omitempty"`

	// ProxyURL optionally routes upstream requests through a proxy.
	ProxyURL string `yaml:"proxy-url,omitempty"`
}

// CredsCacheInterval returns the credential load cache interval.
func (c *Config) CredsCacheInterval() time.Duration {
	if c == nil || c.Credentials.CacheSeconds <= 0 {
		return DefaultCredsCacheSeconds * time.Second
	}
	return time.Duration(c.Credentials.CacheSeconds) * time.Second
}

// GenericCooldown returns the cooldown for generic failures.
func (c *CooldownConfig) GenericCooldown() time.Duration {
	if c == nil || c.GenericSeconds <= 0 {
		return DefaultCooldownGenericSec * time.Second
	}
	return time.Duration(c.GenericSeconds) * time.Second
}

// AuthCooldown returns the cooldown for permission-denied failures.
func (c *CooldownConfig) AuthCooldown() time.Duration {
	if c == nil || c.AuthSeconds <= 0 {
		return DefaultCooldownAuthSec * time.Second
	}
	return time.Duration(c.AuthSeconds) * time.Second
}

// RateLimitCooldown returns the cooldown for rate-limit failures.
func (c *CooldownConfig) RateLimitCooldown() time.Duration {
	if c == nil || c.RateLimitSeconds <= 0 {
		return DefaultCooldownRateSec * time.Second
	}
	return time.Duration(c.RateLimitSeconds) * time.Second
}

// ReadIdleTimeout returns the upstream read-idle timeout.
func (c *UpstreamConfig) ReadIdleTimeout() time.Duration {
	if c == nil || c.ReadIdleTimeoutSeconds <= 0 {
		return DefaultReadIdleTimeoutSec * time.Second
	}
	return time.Duration(c.ReadIdleTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses the configuration file at path. A missing
// file is not an error: defaults are returned so the gateway can start
// from environment-supplied credentials alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Port: DefaultPort}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return cfg, nil
}

// ValidateConfig performs basic semantic validation and returns non-fatal
// warnings alongside a fatal error, if any.
func ValidateConfig(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}
	var warnings []string
	if len(cfg.APIKeys) == 0 {
		warnings = append(warnings, "no api-keys configured; the gateway accepts unauthenticated requests")
	}
	for i, key := range cfg.APIKeys {
		if strings.TrimSpace(key) == "" {
			warnings = append(warnings, fmt.Sprintf("api-keys[%d] is empty and will be ignored", i))
		}
	}
	if cfg.Upstream.BaseURL != "" && !strings.HasPrefix(cfg.Upstream.BaseURL, "http") {
		return nil, fmt.Errorf("upstream base-url %q is not an http(s) URL", cfg.Upstream.BaseURL)
	}
	return warnings, nil
}
