// Package config implements TOML configuration loading for unidrive,
// with a defaults -> config file -> environment override chain. Unknown
// keys in the file are fatal, with "did you mean?" suggestions.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	Server  ServerConfig         `toml:"server"`
	Store   StoreConfig          `toml:"store"`
	Logging LoggingConfig        `toml:"logging"`
	Network NetworkConfig        `toml:"network"`
	Apps    map[string]AppConfig `toml:"apps"`
	Buckets []BucketConfig       `toml:"bucket"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	BaseURL    string `toml:"base_url"`
}

// StoreConfig controls the encrypted session database.
type StoreConfig struct {
	Path      string `toml:"path"`
	Secret    string `toml:"secret"`
	Retention string `toml:"retention"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls outbound HTTP behavior toward the providers.
type NetworkConfig struct {
	CallTimeout string `toml:"call_timeout"`
	UserAgent   string `toml:"user_agent"`
}

// AppConfig is an OAuth client registration for one service, keyed by
// service name under [apps.<service>].
type AppConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

// BucketConfig describes one S3-compatible bucket exposed as an object
// store account. Defined as [[bucket]] entries.
type BucketConfig struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
}

// Default values, layer 0 of the override chain.
const (
	defaultListenAddr  = "127.0.0.1:8350"
	defaultBaseURL     = "http://127.0.0.1:8350"
	defaultStorePath   = "~/.unidrive/session.db"
	defaultRetention   = "24h"
	defaultLogLevel    = "info"
	defaultLogFormat   = "auto"
	defaultCallTimeout = "30s"
)

// DefaultConfig returns a Config populated with all default values.
// Used as the starting point for TOML decoding so unset fields retain
// defaults, and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: defaultListenAddr,
			BaseURL:    defaultBaseURL,
		},
		Store: StoreConfig{
			Path:      defaultStorePath,
			Retention: defaultRetention,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			CallTimeout: defaultCallTimeout,
		},
		Apps: make(map[string]AppConfig),
	}
}

// CallTimeout parses the network call timeout.
func (c *Config) CallTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Network.CallTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid call_timeout %q: %w", c.Network.CallTimeout, err)
	}

	return d, nil
}

// Retention parses the credential retention window.
func (c *Config) Retention() (time.Duration, error) {
	d, err := time.ParseDuration(c.Store.Retention)
	if err != nil {
		return 0, fmt.Errorf("config: invalid retention %q: %w", c.Store.Retention, err)
	}

	return d, nil
}
