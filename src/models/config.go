package models

import "time"

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	LogLevel  string           `yaml:"log_level"`
	Server    MServerConfig    `yaml:"server"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Auth      MAuthConfig      `yaml:"auth"`
	Streaming MStreamingConfig `yaml:"streaming"`
	Polling   MPollingConfig   `yaml:"polling"`
}

// GetLogLevel lets the logger read the level without importing config.
func (c *MConfig) GetLogLevel() string {
	return c.LogLevel
}

type MServerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GrpcPort int    `yaml:"grpc_port"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	Proxies           []string      `yaml:"proxies"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	RedirectLimit     int           `yaml:"redirect_limit"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"retries"`
}

// Crumb TTL is a local policy; the crumb endpoint does not report an expiry.
type MAuthConfig struct {
	CookieURL      string        `yaml:"cookie_url"`
	CrumbURL       string        `yaml:"crumb_url"`
	CrumbTTL       time.Duration `yaml:"crumb_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type MStreamingConfig struct {
	URL               string        `yaml:"url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	Symbols           []string      `yaml:"symbols"`
}

type MPollingConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Interval              string   `yaml:"interval"`
	UpdateIntervalSeconds int      `yaml:"update_interval_seconds"`
	DataRetentionDays     int      `yaml:"data_retention_days"`
	ConcurrentRequests    int      `yaml:"concurrent_requests"`
	Symbols               []string `yaml:"symbols"`
}
