package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"yfinance-observer/src/models"

	"gopkg.in/yaml.v3"
)

// Defaults for every tunable. The crumb TTL is a local refresh policy.
const (
	DefaultName              = "yfinance-observer"
	DefaultLogLevel          = "INFO"
	DefaultCookieURL         = "https://fc.yahoo.com"
	DefaultCrumbURL          = "https://query1.finance.yahoo.com/v1/test/getcrumb"
	DefaultCrumbTTL          = 24 * time.Hour
	DefaultAuthTimeout       = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultRedirectLimit     = 5
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultStreamingURL      = "wss://streamer.finance.yahoo.com/?version=2"
	DefaultHeartbeat         = 30 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReadBufferSize    = 65536
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8000
	DefaultGrpcPort          = 50051
	DefaultDBType            = "sqlite"
	DefaultDBPath            = "yfinance.db"
	DefaultPollInterval      = "5m"
	DefaultUpdateSeconds     = 300
	DefaultRetentionDays     = 7
	DefaultConcurrentFetches = 4
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a Config from raw YAML, applying defaults before validation.
func Parse(data []byte) (*Config, error) {
	modelConfig := presetConfig()
	if err := yaml.Unmarshal(data, modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: modelConfig}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a fully defaulted configuration.
func Default() *Config {
	c := &Config{MConfig: presetConfig()}
	c.ApplyDefaults()
	return c
}

// presetConfig seeds the fields where zero is a meaningful setting. YAML only
// overwrites keys that are present, so an explicit 0 survives.
func presetConfig() *models.MConfig {
	return &models.MConfig{
		Network: models.MNetworkConfig{RedirectLimit: DefaultRedirectLimit},
	}
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Auth.CookieURL == "" {
		c.Auth.CookieURL = DefaultCookieURL
	}
	if c.Auth.CrumbURL == "" {
		c.Auth.CrumbURL = DefaultCrumbURL
	}
	if c.Auth.CrumbTTL == 0 {
		c.Auth.CrumbTTL = DefaultCrumbTTL
	}
	if c.Auth.RequestTimeout == 0 {
		c.Auth.RequestTimeout = DefaultAuthTimeout
	}

	if c.Network.ConnectTimeout == 0 {
		c.Network.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Network.ReadTimeout == 0 {
		c.Network.ReadTimeout = DefaultReadTimeout
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = DefaultUserAgent
	}

	if c.Streaming.URL == "" {
		c.Streaming.URL = DefaultStreamingURL
	}
	if c.Streaming.HeartbeatInterval == 0 {
		c.Streaming.HeartbeatInterval = DefaultHeartbeat
	}
	if c.Streaming.ShutdownTimeout == 0 {
		c.Streaming.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Streaming.HandshakeTimeout == 0 {
		c.Streaming.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Streaming.ReadBufferSize == 0 {
		c.Streaming.ReadBufferSize = DefaultReadBufferSize
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.GrpcPort == 0 {
		c.Server.GrpcPort = DefaultGrpcPort
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = DefaultDBType
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}

	if c.Polling.Interval == "" {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.UpdateIntervalSeconds == 0 {
		c.Polling.UpdateIntervalSeconds = DefaultUpdateSeconds
	}
	if c.Polling.DataRetentionDays == 0 {
		c.Polling.DataRetentionDays = DefaultRetentionDays
	}
	if c.Polling.ConcurrentRequests == 0 {
		c.Polling.ConcurrentRequests = DefaultConcurrentFetches
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Auth
	if err := validateURL("auth.cookie_url", c.Auth.CookieURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("auth.crumb_url", c.Auth.CrumbURL, "http", "https"); err != nil {
		return err
	}
	if c.Auth.CrumbTTL < 0 {
		return fmt.Errorf("auth.crumb_ttl cannot be negative")
	}

	// Network
	if c.Network.ConnectTimeout < 0 || c.Network.ReadTimeout < 0 {
		return fmt.Errorf("network timeouts cannot be negative")
	}
	if c.Network.RedirectLimit < 0 {
		return fmt.Errorf("network.redirect_limit cannot be negative")
	}
	if c.Network.RequestsPerSecond < 0 {
		return fmt.Errorf("network.requests_per_second cannot be negative")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	for i, p := range c.Network.Proxies {
		if p == "" {
			return fmt.Errorf("proxy %d cannot be empty", i)
		}
	}

	// Streaming
	if err := validateURL("streaming.url", c.Streaming.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Streaming.HeartbeatInterval <= 0 {
		return fmt.Errorf("streaming.heartbeat_interval must be greater than 0")
	}
	if c.Streaming.ShutdownTimeout <= 0 {
		return fmt.Errorf("streaming.shutdown_timeout must be greater than 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Host == "" {
			return fmt.Errorf("server host cannot be empty")
		}
		if c.Server.Port <= 1024 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Server.Port)
		}
		if c.Server.GrpcPort <= 1024 || c.Server.GrpcPort > 65535 {
			return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.Server.GrpcPort)
		}
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Polling
	if c.Polling.Enabled {
		if c.Polling.UpdateIntervalSeconds <= 0 {
			return fmt.Errorf("update interval must be greater than 0")
		}
		if c.Polling.DataRetentionDays <= 0 {
			return fmt.Errorf("data retention days must be greater than 0")
		}
		if c.Polling.ConcurrentRequests <= 0 {
			return fmt.Errorf("concurrent requests must be greater than 0")
		}
		if len(c.Polling.Symbols) == 0 {
			return fmt.Errorf("polling requires at least one symbol")
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL, got %q", field, schemes, raw)
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
