package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	require.Equal(t, "https://license.vcsuite.io", cfg.Server.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Server.ConnectTimeout)
	require.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, "post", cfg.License.Mode)
	require.Equal(t, 7, cfg.License.GracePeriodDays)
	require.Equal(t, 72, cfg.License.OfflineToleranceHours)
	require.Equal(t, time.Hour, cfg.License.ClockTamperTolerance)
	require.Equal(t, 8700, cfg.HTTP.Port)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestDefaultsDoNotClobberExplicitValues(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{BaseURL: "http://localhost:9999"},
		License: LicenseConfig{Mode: "pre", GracePeriodDays: 14},
	}
	cfg.applyDefaults()

	require.Equal(t, "http://localhost:9999", cfg.Server.BaseURL)
	require.Equal(t, "pre", cfg.License.Mode)
	require.Equal(t, 14, cfg.License.GracePeriodDays)
	require.Equal(t, 72, cfg.License.OfflineToleranceHours)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vcengine.yaml")
	content := `
server:
  base_url: http://license.internal:8080
  request_timeout: 30s
license:
  mode: pre
  grace_period_days: 3
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadFromFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "http://license.internal:8080", cfg.Server.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, "pre", cfg.License.Mode)
	require.Equal(t, 3, cfg.License.GracePeriodDays)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg, err := loadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := loadFromFile(path)
	require.Error(t, err)
}

func TestMergeEnvWins(t *testing.T) {
	fromFile := Config{
		Server:  ServerConfig{BaseURL: "http://from-file", ConnectTimeout: 2 * time.Second},
		License: LicenseConfig{Mode: "post", GracePeriodDays: 3},
		Logging: LoggingConfig{Level: "warn"},
	}
	fromEnv := Config{
		Server:  ServerConfig{BaseURL: "http://from-env"},
		License: LicenseConfig{GracePeriodDays: 10},
	}

	out := merge(fromFile, fromEnv)
	require.Equal(t, "http://from-env", out.Server.BaseURL)
	require.Equal(t, 2*time.Second, out.Server.ConnectTimeout)
	require.Equal(t, "post", out.License.Mode)
	require.Equal(t, 10, out.License.GracePeriodDays)
	require.Equal(t, "warn", out.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.License.Mode = "lax" }, true},
		{"negative grace", func(c *Config) { c.License.GracePeriodDays = -1 }, true},
		{"negative tolerance", func(c *Config) { c.License.OfflineToleranceHours = -5 }, true},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }, true},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaultLicensePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := DefaultLicensePath()
	require.NoError(t, err)
	require.Equal(t, "license.json", filepath.Base(path))
	require.DirExists(t, filepath.Dir(path))
}
