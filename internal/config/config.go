package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.syncd/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	Server ServerConfig `toml:"server"`
	Stream StreamConfig `toml:"stream"`
}

// ServerConfig holds the remote endpoints for a session.
type ServerConfig struct {
	// MessageURL is the websocket endpoint for message delivery events.
	MessageURL string `toml:"message_url"`
	// QuoteURL is the websocket endpoint for the numeric price stream.
	QuoteURL string `toml:"quote_url"`
	// ReconnectMinMS / ReconnectMaxMS bound the reconnect backoff.
	ReconnectMinMS int `toml:"reconnect_min_ms"`
	ReconnectMaxMS int `toml:"reconnect_max_ms"`
}

// StreamConfig tunes the numeric stream gate.
type StreamConfig struct {
	// MinIntervalSeconds is the minimum time between two emissions.
	MinIntervalSeconds int `toml:"min_interval_seconds"`
}

// Defaults used when fields are absent from the file.
const (
	DefaultReconnectMin  = 500 * time.Millisecond
	DefaultReconnectMax  = 30 * time.Second
	DefaultStreamGateMin = 10 * time.Second
)

// ReconnectMin returns the configured minimum backoff or the default.
func (s ServerConfig) ReconnectMin() time.Duration {
	if s.ReconnectMinMS <= 0 {
		return DefaultReconnectMin
	}
	return time.Duration(s.ReconnectMinMS) * time.Millisecond
}

// ReconnectMax returns the configured maximum backoff or the default.
func (s ServerConfig) ReconnectMax() time.Duration {
	if s.ReconnectMaxMS <= 0 {
		return DefaultReconnectMax
	}
	return time.Duration(s.ReconnectMaxMS) * time.Millisecond
}

// MinInterval returns the configured stream gate interval or the default.
func (s StreamConfig) MinInterval() time.Duration {
	if s.MinIntervalSeconds <= 0 {
		return DefaultStreamGateMin
	}
	return time.Duration(s.MinIntervalSeconds) * time.Second
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
