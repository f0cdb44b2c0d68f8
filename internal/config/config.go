package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces the engine's environment variables, e.g.
// VC_SERVER_BASE_URL.
const envPrefix = "VC"

// configFileName sits next to the installed binary.
const configFileName = "vcengine.yaml"

// Config is the complete engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	HTTP    HTTPConfig    `yaml:"http" envconfig:"HTTP"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig locates the remote license authority.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// LicenseConfig holds the compiled-in validity policy defaults. The
// offline tolerance may be overridden per response by the server.
type LicenseConfig struct {
	File                  string        `yaml:"file" envconfig:"FILE"`
	Secret                string        `yaml:"secret" envconfig:"SECRET"`
	ProductCode           string        `yaml:"product_code" envconfig:"PRODUCT_CODE"`
	Mode                  string        `yaml:"mode" envconfig:"MODE"`
	GracePeriodDays       int           `yaml:"grace_period_days" envconfig:"GRACE_PERIOD_DAYS"`
	OfflineToleranceHours int           `yaml:"offline_tolerance_hours" envconfig:"OFFLINE_TOLERANCE_HOURS"`
	ClockTamperTolerance  time.Duration `yaml:"clock_tamper_tolerance" envconfig:"CLOCK_TAMPER_TOLERANCE"`
	RevalidateInterval    time.Duration `yaml:"revalidate_interval" envconfig:"REVALIDATE_INTERVAL"`
	DeviceName            string        `yaml:"device_name" envconfig:"DEVICE_NAME"`
}

// HTTPConfig configures the host-facing HTTP surface.
type HTTPConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Load resolves the configuration: environment variables win over the
// YAML file next to the binary, which wins over the defaults.
func Load() (*Config, error) {
	var fromEnv Config
	if err := envconfig.Process(envPrefix, &fromEnv); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	cfg := fromEnv
	if path, err := adjacentConfigFile(); err == nil {
		if fromFile, err := loadFromFile(path); err != nil {
			return nil, err
		} else if fromFile != nil {
			cfg = merge(*fromFile, fromEnv)
		}
	}

	cfg.applyDefaults()

	if cfg.License.File == "" {
		licensePath, err := DefaultLicensePath()
		if err != nil {
			return nil, fmt.Errorf("resolve license path: %w", err)
		}
		cfg.License.File = licensePath
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// merge overlays env values on top of file values; env wins wherever
// it is set.
func merge(fromFile, fromEnv Config) Config {
	out := fromFile
	if fromEnv.Server.BaseURL != "" {
		out.Server.BaseURL = fromEnv.Server.BaseURL
	}
	if fromEnv.Server.ConnectTimeout != 0 {
		out.Server.ConnectTimeout = fromEnv.Server.ConnectTimeout
	}
	if fromEnv.Server.RequestTimeout != 0 {
		out.Server.RequestTimeout = fromEnv.Server.RequestTimeout
	}
	if fromEnv.License.File != "" {
		out.License.File = fromEnv.License.File
	}
	if fromEnv.License.Secret != "" {
		out.License.Secret = fromEnv.License.Secret
	}
	if fromEnv.License.ProductCode != "" {
		out.License.ProductCode = fromEnv.License.ProductCode
	}
	if fromEnv.License.Mode != "" {
		out.License.Mode = fromEnv.License.Mode
	}
	if fromEnv.License.GracePeriodDays != 0 {
		out.License.GracePeriodDays = fromEnv.License.GracePeriodDays
	}
	if fromEnv.License.OfflineToleranceHours != 0 {
		out.License.OfflineToleranceHours = fromEnv.License.OfflineToleranceHours
	}
	if fromEnv.License.ClockTamperTolerance != 0 {
		out.License.ClockTamperTolerance = fromEnv.License.ClockTamperTolerance
	}
	if fromEnv.License.RevalidateInterval != 0 {
		out.License.RevalidateInterval = fromEnv.License.RevalidateInterval
	}
	if fromEnv.License.DeviceName != "" {
		out.License.DeviceName = fromEnv.License.DeviceName
	}
	if fromEnv.HTTP.Port != 0 {
		out.HTTP.Port = fromEnv.HTTP.Port
	}
	if fromEnv.HTTP.ReadTimeout != 0 {
		out.HTTP.ReadTimeout = fromEnv.HTTP.ReadTimeout
	}
	if fromEnv.HTTP.WriteTimeout != 0 {
		out.HTTP.WriteTimeout = fromEnv.HTTP.WriteTimeout
	}
	if fromEnv.HTTP.ShutdownTimeout != 0 {
		out.HTTP.ShutdownTimeout = fromEnv.HTTP.ShutdownTimeout
	}
	if fromEnv.Logging.Level != "" {
		out.Logging.Level = fromEnv.Logging.Level
	}
	if fromEnv.Logging.Format != "" {
		out.Logging.Format = fromEnv.Logging.Format
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "https://license.vcsuite.io"
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 5 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 15 * time.Second
	}
	if c.License.Mode == "" {
		c.License.Mode = "post"
	}
	if c.License.Secret == "" {
		// Release builds override this at link time with -ldflags.
		c.License.Secret = "vc-dev-signing-secret"
	}
	if c.License.ProductCode == "" {
		c.License.ProductCode = "VC01"
	}
	if c.License.GracePeriodDays == 0 {
		c.License.GracePeriodDays = 7
	}
	if c.License.OfflineToleranceHours == 0 {
		c.License.OfflineToleranceHours = 72
	}
	if c.License.ClockTamperTolerance == 0 {
		c.License.ClockTamperTolerance = time.Hour
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8700
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.License.Mode != "post" && c.License.Mode != "pre" {
		return fmt.Errorf("license mode must be \"post\" or \"pre\", got %q", c.License.Mode)
	}
	if c.License.GracePeriodDays < 0 {
		return fmt.Errorf("grace period days must not be negative")
	}
	if c.License.OfflineToleranceHours < 0 {
		return fmt.Errorf("offline tolerance hours must not be negative")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.Server.ConnectTimeout <= 0 || c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive and finite")
	}
	return nil
}
