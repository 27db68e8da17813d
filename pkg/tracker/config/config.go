// Package config holds the tracker configuration: the collector endpoint,
// tracking thresholds, local server, storage, and retry tuning. Settings are
// loaded from a YAML file at startup and remain mutable at runtime through
// the Store.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the tracker daemon configuration
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Retry     RetryConfig     `yaml:"retry"`
}

// CollectorConfig holds the remote collector endpoint configuration
type CollectorConfig struct {
	URL string `yaml:"url"`
	// Credential is sent as a bearer token when non-empty.
	Credential      string        `yaml:"credential,omitempty"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// TrackingConfig holds session accounting configuration
type TrackingConfig struct {
	UserID            string        `yaml:"user_id"`
	IdleThreshold     time.Duration `yaml:"idle_threshold"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ServerConfig holds the local HTTP API configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds persistence configuration. Driver is "sqlite"
// (default) or "postgres"; DSN is the file path for sqlite.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RetryConfig holds retry queue tuning
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	KickDelay     time.Duration `yaml:"kick_delay"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	return &config, nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Collector.URL == "" {
		c.Collector.URL = "http://localhost:8090"
	}
	if c.Collector.DeliveryTimeout == 0 {
		c.Collector.DeliveryTimeout = 15 * time.Second
	}

	if c.Tracking.IdleThreshold == 0 {
		c.Tracking.IdleThreshold = time.Minute
	}
	if c.Tracking.HeartbeatInterval == 0 {
		c.Tracking.HeartbeatInterval = 30 * time.Second
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8712
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "tracker.db"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.SweepInterval == 0 {
		c.Retry.SweepInterval = 30 * time.Second
	}
	if c.Retry.KickDelay == 0 {
		c.Retry.KickDelay = 5 * time.Second
	}
}

// Validate validates the configuration. An empty user id is allowed here:
// dispatch rejects events until one is configured, but the daemon itself
// must come up so settings can be filled in through the API.
func (c *Config) Validate() error {
	if c.Collector.URL == "" {
		return fmt.Errorf("collector.url is required")
	}

	if c.Tracking.IdleThreshold <= 0 {
		return fmt.Errorf("tracking.idle_threshold must be positive")
	}
	if c.Tracking.HeartbeatInterval <= 0 {
		return fmt.Errorf("tracking.heartbeat_interval must be positive")
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}

	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.SetDefaults()
	return config
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
