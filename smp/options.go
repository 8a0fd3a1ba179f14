package smp

import (
	"time"

	"github.com/moffa90/go-mcumgr/logging"
)

// Config holds the client configuration.
type Config struct {
	// Timeout bounds the wait for each response
	Timeout time.Duration

	// AutoReconnect re-establishes a dropped link before the next request,
	// once the client has connected at least once
	AutoReconnect bool

	// ReconnectTimeout bounds each automatic reconnect
	ReconnectTimeout time.Duration

	// Logger is used for logging operations (optional)
	Logger logging.Logger
}

func defaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		AutoReconnect:    true,
		ReconnectTimeout: 10 * time.Second,
		Logger:           logging.Nop(),
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithTimeout sets the response timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithAutoReconnect enables or disables reconnecting a dropped link.
// Default is true.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Config) {
		c.AutoReconnect = enabled
	}
}

// WithReconnectTimeout bounds each automatic reconnect.
func WithReconnectTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReconnectTimeout = timeout
		}
	}
}

// WithLogger sets a logger for client operations.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
