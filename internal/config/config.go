// Package config loads the client configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/hostelhub/client/internal/logging"
)

// APIConfig holds remote API settings.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// StorageConfig holds local durable storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// EncryptionKey seals the session token and push keys at rest when set.
	EncryptionKey string `yaml:"encryption_key"`
}

// ConnectivityConfig holds reachability probe settings.
type ConnectivityConfig struct {
	ProbeInterval string `yaml:"probe_interval"`
	ProbeTimeout  string `yaml:"probe_timeout"`
}

// PushConfig holds push notification settings.
type PushConfig struct {
	ServiceURL     string `yaml:"service_url"`
	VAPIDPublicKey string `yaml:"vapid_public_key"`
	// Origin resolves relative notification URLs.
	Origin string `yaml:"origin"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stderr", "stdout" or "file"
	File   string `yaml:"file"`   // used if output is "file"
}

// Config is the full client configuration.
type Config struct {
	API          APIConfig          `yaml:"api"`
	Storage      StorageConfig      `yaml:"storage"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Push         PushConfig         `yaml:"push"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Environment variables that override file values.
const (
	EnvAPIURL     = "HOSTELHUB_API_URL"
	EnvDataDir    = "HOSTELHUB_DATA_DIR"
	EnvLogLevel   = "HOSTELHUB_LOG_LEVEL"
	EnvStorageKey = "HOSTELHUB_STORAGE_KEY"
	EnvPushURL    = "HOSTELHUB_PUSH_URL"
)

// DefaultVAPIDPublicKey is the application server key the API signs pushes with.
const DefaultVAPIDPublicKey = "BIRuPPSH5JFfJox50Xc520YzCdKro2Ne9mfEWbEIUdvvbVnXsVf_SFMEVyy1gipwbvuZuejNomU_i1ptHPGIqIo"

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := "./data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".hostelhub")
	}

	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: "15s",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: "5s",
			ProbeTimeout:  "3s",
		},
		Push: PushConfig{
			VAPIDPublicKey: DefaultVAPIDPublicKey,
			Origin:         "http://localhost:5173",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "hostelhub.log",
		},
	}
}

// ParseDuration parses a duration string, falling back to def when empty or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" || s == "0" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logging.Warn("Invalid duration format, using default",
			map[string]interface{}{"input": s, "default": def.String(), "error": err.Error()})
		return def
	}
	return d
}

// Load reads YAML from r on top of the defaults. A nil or empty reader yields the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig loads path (a missing file means defaults), applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg *Config
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if cfg, err = Load(file); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) || path == "":
		cfg = Default()
	default:
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvStorageKey); ok && v != "" {
		c.Storage.EncryptionKey = v
	}
	if v, ok := lookup(EnvPushURL); ok && v != "" {
		c.Push.ServiceURL = v
	}
}

// Validate checks the configuration and normalises the API base URL.
func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	switch c.Logging.Output {
	case "stdout", "stderr", "none":
	case "file":
		if c.Logging.File == "" {
			return fmt.Errorf("logging.file is required when logging.output is file")
		}
	default:
		return fmt.Errorf("logging.output must be stdout, stderr, file or none, got %q", c.Logging.Output)
	}

	if c.Push.ServiceURL != "" {
		if _, err := url.Parse(c.Push.ServiceURL); err != nil {
			return fmt.Errorf("push.service_url: %w", err)
		}
	}

	return nil
}

// APITimeout returns the per-request timeout.
func (c *Config) APITimeout() time.Duration {
	return ParseDuration(c.API.Timeout, 15*time.Second)
}

// ProbeInterval returns how often reachability is checked.
func (c *Config) ProbeInterval() time.Duration {
	return ParseDuration(c.Connectivity.ProbeInterval, 5*time.Second)
}

// ProbeTimeout returns the timeout of a single reachability check.
func (c *Config) ProbeTimeout() time.Duration {
	return ParseDuration(c.Connectivity.ProbeTimeout, 3*time.Second)
}

// LogWriter opens the configured log destination.
// The returned closer is a no-op for stdout and stderr.
func (c *Config) LogWriter() (io.Writer, func() error, error) {
	switch c.Logging.Output {
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	case "none":
		return io.Discard, func() error { return nil }, nil
	case "file":
		f, err := os.OpenFile(c.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, f.Close, nil
	default:
		return os.Stderr, func() error { return nil }, nil
	}
}
