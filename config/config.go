package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// DatabaseEndpointConfig holds configuration for a single database endpoint.
type DatabaseEndpointConfig struct {
	// List of database hosts. Multiple hosts are common for read replica
	// load balancing; write endpoints usually carry a single host.
	Hosts           []string `toml:"hosts"`
	Port            string   `toml:"port"` // Database port (default: "5432")
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	Name            string   `toml:"name"`
	TLSMode         bool     `toml:"tls"`
	MaxConns        int      `toml:"max_conns"`          // Maximum number of connections in the pool
	MinConns        int      `toml:"min_conns"`          // Minimum number of connections in the pool
	MaxConnLifetime string   `toml:"max_conn_lifetime"`  // Maximum lifetime of a connection
	MaxConnIdleTime string   `toml:"max_conn_idle_time"` // Maximum idle time before a connection is closed
}

// GetMaxConnLifetime parses the max connection lifetime duration for an endpoint.
func (e *DatabaseEndpointConfig) GetMaxConnLifetime() (time.Duration, error) {
	if e.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(e.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration for an endpoint.
func (e *DatabaseEndpointConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if e.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(e.MaxConnIdleTime)
}

// DatabaseConfig holds database configuration with separate read/write endpoints.
type DatabaseConfig struct {
	Debug        bool                    `toml:"debug"`         // Enable SQL query logging
	QueryTimeout string                  `toml:"query_timeout"` // Default timeout for database queries (default: "30s")
	Write        *DatabaseEndpointConfig `toml:"write"`         // Write database configuration
	Read         *DatabaseEndpointConfig `toml:"read"`          // Read database configuration
}

// GetQueryTimeout parses the general query timeout duration.
func (d *DatabaseConfig) GetQueryTimeout() (time.Duration, error) {
	if d.QueryTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.QueryTimeout)
}

// HTTPAPIConfig holds configuration for the admin HTTP API server.
type HTTPAPIConfig struct {
	Addr         string   `toml:"addr"`          // Listen address (default: ":8480")
	APIKey       string   `toml:"api_key"`       // Bearer token required on every request
	AllowedHosts []string `toml:"allowed_hosts"` // Client IPs or CIDR blocks allowed to connect
	TLS          bool     `toml:"tls"`
	TLSCertFile  string   `toml:"tls_cert_file"`
	TLSKeyFile   string   `toml:"tls_key_file"`
}

// DirectoryConfig points the bridge at the groupware user directory.
type DirectoryConfig struct {
	BaseURL  string `toml:"base_url"` // Directory server base URL (e.g. "https://cloud.example.com")
	Username string `toml:"username"` // Admin user for the provisioning API
	Password string `toml:"password"`
	Timeout  string `toml:"timeout"` // HTTP timeout (default: "15s")
}

// GetTimeout parses the directory client timeout.
func (d *DirectoryConfig) GetTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 15 * time.Second, nil
	}
	return time.ParseDuration(d.Timeout)
}

// HealthConfig controls on-demand health probes of remote mail servers.
type HealthConfig struct {
	Timeout string `toml:"timeout"` // Probe timeout (default: "10s")
	TTL     string `toml:"ttl"`     // How long a probe result stays fresh (default: "1h")
}

// GetTimeout parses the probe timeout.
func (h *HealthConfig) GetTimeout() (time.Duration, error) {
	if h.Timeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(h.Timeout)
}

// GetTTL parses the probe result lifetime.
func (h *HealthConfig) GetTTL() (time.Duration, error) {
	if h.TTL == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(h.TTL)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// Config is the top-level TOML configuration.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	HTTPAPI   HTTPAPIConfig   `toml:"http_api"`
	Directory DirectoryConfig `toml:"directory"`
	Health    HealthConfig    `toml:"health"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.Write == nil || len(c.Database.Write.Hosts) == 0 {
		return fmt.Errorf("database.write.hosts is required")
	}
	if c.HTTPAPI.APIKey == "" {
		return fmt.Errorf("http_api.api_key is required")
	}
	if c.HTTPAPI.TLS && (c.HTTPAPI.TLSCertFile == "" || c.HTTPAPI.TLSKeyFile == "") {
		return fmt.Errorf("http_api.tls_cert_file and http_api.tls_key_file are required when TLS is enabled")
	}
	if _, err := c.Database.GetQueryTimeout(); err != nil {
		return fmt.Errorf("invalid database.query_timeout: %w", err)
	}
	if _, err := c.Health.GetTimeout(); err != nil {
		return fmt.Errorf("invalid health.timeout: %w", err)
	}
	if _, err := c.Health.GetTTL(); err != nil {
		return fmt.Errorf("invalid health.ttl: %w", err)
	}
	if _, err := c.Directory.GetTimeout(); err != nil {
		return fmt.Errorf("invalid directory.timeout: %w", err)
	}
	return nil
}
