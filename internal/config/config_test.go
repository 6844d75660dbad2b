package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.CredsCacheInterval())
	assert.Equal(t, time.Minute, cfg.Cooldown.GenericCooldown())
	assert.Equal(t, 5*time.Minute, cfg.Cooldown.AuthCooldown())
	assert.Equal(t, 10*time.Minute, cfg.Cooldown.RateLimitCooldown())
	assert.Equal(t, 5*time.Minute, cfg.Upstream.ReadIdleTimeout())
}

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
api-keys:
  - sk-one
debug: true
metrics-enabled: true
credentials:
  file: /tmp/creds.json
  cache-seconds: 30
cooldown:
  generic-seconds: 10
  auth-seconds: 20
  rate-limit-seconds: 40
upstream:
  base-url: https://example.test
  read-idle-timeout-seconds: 60
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"sk-one"}, cfg.APIKeys)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "/tmp/creds.json", cfg.Credentials.File)
	assert.Equal(t, 30*time.Second, cfg.CredsCacheInterval())
	assert.Equal(t, 10*time.Second, cfg.Cooldown.GenericCooldown())
	assert.Equal(t, 20*time.Second, cfg.Cooldown.AuthCooldown())
	assert.Equal(t, 40*time.Second, cfg.Cooldown.RateLimitCooldown())
	assert.Equal(t, "https://example.test", cfg.Upstream.BaseURL)
	assert.Equal(t, time.Minute, cfg.Upstream.ReadIdleTimeout())
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [broken"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	warnings, err := ValidateConfig(&Config{Port: DefaultPort})
	require.NoError(t, err)
	assert.NotEmpty(t, warnings, "missing api-keys should warn")

	_, err = ValidateConfig(&Config{Port: 0})
	assert.Error(t, err)

	_, err = ValidateConfig(&Config{Port: DefaultPort, Upstream: UpstreamConfig{BaseURL: "ftp://x"}})
	assert.Error(t, err)

	warnings, err = ValidateConfig(&Config{Port: DefaultPort, APIKeys: []string{"sk-one"}})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
