// Package config loads and validates the courier client configuration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the courier client.
type Config struct {
	// Server holds backend endpoint settings.
	Server ServerConfig `yaml:"server"`

	// Connection holds channel session settings.
	Connection ConnectionConfig `yaml:"connection"`

	// Presence holds typing-indicator tuning knobs.
	Presence PresenceConfig `yaml:"presence"`

	// Cache holds local message cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`
}

// ServerConfig holds backend endpoint settings.
type ServerConfig struct {
	// APIURL is the REST base URL, e.g. "https://chat.example.com/api".
	APIURL string `yaml:"api_url"`

	// SocketURL is the channel endpoint, e.g. "wss://chat.example.com/ws".
	SocketURL string `yaml:"socket_url"`

	// RequestTimeoutSeconds bounds each REST round trip. Default: 15.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the REST round-trip bound as a duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ConnectionConfig holds channel session settings.
type ConnectionConfig struct {
	// HandshakeTimeoutSeconds bounds the websocket dial. Default: 10.
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`

	// PingIntervalSeconds is the keep-alive ping cadence. Default: 30.
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`

	// PongWaitSeconds is how long to wait for a pong before declaring the
	// connection dead. Must exceed PingIntervalSeconds. Default: 45.
	PongWaitSeconds int `yaml:"pong_wait_seconds"`

	// Reconnect controls automatic reconnection after a dropped session.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// HandshakeTimeout returns the dial bound as a duration.
func (c ConnectionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// PingInterval returns the ping cadence as a duration.
func (c ConnectionConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// PongWait returns the pong deadline as a duration.
func (c ConnectionConfig) PongWait() time.Duration {
	return time.Duration(c.PongWaitSeconds) * time.Second
}

// ReconnectConfig controls reconnection backoff.
type ReconnectConfig struct {
	// Enabled turns automatic reconnection on.
	Enabled bool `yaml:"enabled"`

	// MaxAttempts caps consecutive failed attempts (0 = unlimited).
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelayMs is the delay after the first failure. Default: 2000.
	InitialDelayMs int `yaml:"initial_delay_ms"`

	// MaxDelayMs caps the backoff delay. Default: 30000.
	MaxDelayMs int `yaml:"max_delay_ms"`

	// Factor is the exponential backoff multiplier. Default: 2.
	Factor float64 `yaml:"factor"`

	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool `yaml:"jitter"`
}

// InitialDelay returns the first-failure delay as a duration.
func (r ReconnectConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// PresenceConfig holds typing-indicator tuning knobs. The defaults match
// the product behavior and changing them is rarely necessary.
type PresenceConfig struct {
	// SweepIntervalMs is the cadence of the staleness sweep. Default: 1000.
	SweepIntervalMs int `yaml:"sweep_interval_ms"`

	// StalenessMs is the age past which a typing entry is treated as absent
	// even without an explicit stop signal. Default: 3000.
	StalenessMs int `yaml:"staleness_ms"`

	// StopTypingQuietMs is the quiet period after the last keystroke before
	// a stop-typing signal is emitted. Default: 1000.
	StopTypingQuietMs int `yaml:"stop_typing_quiet_ms"`
}

// SweepInterval returns the sweep cadence as a duration.
func (p PresenceConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMs) * time.Millisecond
}

// Staleness returns the eviction age as a duration.
func (p PresenceConfig) Staleness() time.Duration {
	return time.Duration(p.StalenessMs) * time.Millisecond
}

// StopTypingQuiet returns the quiet period as a duration.
func (p PresenceConfig) StopTypingQuiet() time.Duration {
	return time.Duration(p.StopTypingQuietMs) * time.Millisecond
}

// CacheConfig holds local message cache settings.
type CacheConfig struct {
	// Enabled turns the on-disk cache on.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			APIURL:                "http://localhost:3001/api",
			SocketURL:             "ws://localhost:3001",
			RequestTimeoutSeconds: 15,
		},
		Connection: ConnectionConfig{
			HandshakeTimeoutSeconds: 10,
			PingIntervalSeconds:     30,
			PongWaitSeconds:         45,
			Reconnect: ReconnectConfig{
				Enabled:        true,
				MaxAttempts:    0,
				InitialDelayMs: 2000,
				MaxDelayMs:     30000,
				Factor:         2,
				Jitter:         true,
			},
		},
		Presence: PresenceConfig{
			SweepIntervalMs:   1000,
			StalenessMs:       3000,
			StopTypingQuietMs: 1000,
		},
		Cache: CacheConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.APIURL) == "" {
		return fmt.Errorf("server.api_url is required")
	}
	if strings.TrimSpace(c.Server.SocketURL) == "" {
		return fmt.Errorf("server.socket_url is required")
	}
	if c.Connection.PongWaitSeconds <= c.Connection.PingIntervalSeconds {
		return fmt.Errorf("connection.pong_wait_seconds (%d) must exceed connection.ping_interval_seconds (%d)",
			c.Connection.PongWaitSeconds, c.Connection.PingIntervalSeconds)
	}
	if c.Presence.SweepIntervalMs <= 0 {
		return fmt.Errorf("presence.sweep_interval_ms must be positive")
	}
	if c.Presence.StalenessMs < c.Presence.SweepIntervalMs {
		return fmt.Errorf("presence.staleness_ms (%d) must be at least presence.sweep_interval_ms (%d)",
			c.Presence.StalenessMs, c.Presence.SweepIntervalMs)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("cache.path is required when cache.enabled is true")
	}
	return nil
}
