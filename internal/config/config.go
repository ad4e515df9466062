// Package config handles application configuration
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

const (
	appName = "pinmark"

	DefaultBaseURL    = "https://api.pinboard.in/v1"
	DefaultTimeout    = "30s"
	DefaultListen     = "127.0.0.1:18900"
	DefaultDebounceMs = 250
)

// APIConfig holds remote service settings
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"` // e.g. "30s"
}

// StorageConfig holds the options database location
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Token          string   `yaml:"token"`
}

// TabsConfig holds tab state rendering settings
type TabsConfig struct {
	LatestWins *bool `yaml:"latest_wins"` // default: true
}

// WatcherConfig holds options file watching settings
type WatcherConfig struct {
	Enabled    *bool `yaml:"enabled"` // default: true
	DebounceMs int   `yaml:"debounce_ms"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose           bool  `yaml:"verbose"`
	BackgroundEnabled *bool `yaml:"background_enabled"` // Controls background log file creation (default: false)
}

// Config represents the application configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Tabs    TabsConfig    `yaml:"tabs"`
	Watcher WatcherConfig `yaml:"watcher"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = DefaultTimeout
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(GetDataDir(), "options.db")
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Watcher.DebounceMs == 0 {
		c.Watcher.DebounceMs = DefaultDebounceMs
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()
	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	return cfg, nil
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// save writes the configuration to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The sample carries the documentation; every value in it is a default.
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("invalid api.base_url: %q (must be an http or https URL)", c.API.BaseURL)
	}

	if c.API.Timeout != "" {
		d, err := time.ParseDuration(c.API.Timeout)
		if err != nil {
			return fmt.Errorf("invalid duration for api.timeout: %q", c.API.Timeout)
		}
		if d <= 0 {
			return fmt.Errorf("api.timeout must be positive, got %q", c.API.Timeout)
		}
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %q (expected host:port)", c.Server.Listen)
	}

	if c.Watcher.DebounceMs < 0 {
		return fmt.Errorf("watcher.debounce_ms must not be negative, got %d", c.Watcher.DebounceMs)
	}

	return nil
}

// GetTimeout returns the API timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second // Default fallback
	}
	return d
}

// IsLatestWinsEnabled reports whether superseded tab renders are discarded (default: true)
func (c *Config) IsLatestWinsEnabled() bool {
	if c.Tabs.LatestWins == nil {
		return true
	}
	return *c.Tabs.LatestWins
}

// IsWatcherEnabled reports whether the options file is watched (default: true)
func (c *Config) IsWatcherEnabled() bool {
	if c.Watcher.Enabled == nil {
		return true
	}
	return *c.Watcher.Enabled
}

// GetDebounce returns the watcher debounce as a duration
func (c *Config) GetDebounce() time.Duration {
	if c.Watcher.DebounceMs <= 0 {
		return DefaultDebounceMs * time.Millisecond
	}
	return time.Duration(c.Watcher.DebounceMs) * time.Millisecond
}

// IsBackgroundLoggingEnabled reports whether a log file is written (default: false)
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return false
	}
	return *c.Logging.BackgroundEnabled
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, appName)
	}
	return filepath.Join(home, fallbackPath, appName)
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
