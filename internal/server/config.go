package server

import (
	"time"

	"github.com/janusrpc/janus/errs"
)

// Config holds the server's tunable caps and defaults, the server-side
// sibling of client.Config (both trace back to the same original source's
// config module, one preset trio each).
type Config struct {
	MaxConcurrentConnections int
	MaxMessageSize           int
	RequestTimeout           time.Duration
	MaxCommandHandlers       int
	EnableResourceMonitoring bool
	MaxChannelNameLength     int
	MaxCommandNameLength     int
	MaxArgsDataSize          int

	// CleanupOnStart unlinks a stale socket file before binding.
	CleanupOnStart bool
	// CleanupOnShutdown unlinks the socket file on Stop.
	CleanupOnShutdown bool

	// SlowProcessDelay is how long the slow_process built-in sleeps before
	// replying; it exists to exercise client/server timeout handling.
	SlowProcessDelay time.Duration

	// AllowedSocketPrefixes restricts where the listening socket may
	// resolve to. Empty means sockutil.DefaultAllowedPrefixes (/tmp, /var/run).
	AllowedSocketPrefixes []string
}

// DefaultServerConfig returns the baseline configuration.
func DefaultServerConfig() Config {
	return Config{
		MaxConcurrentConnections: 100,
		MaxMessageSize:           10_000_000,
		RequestTimeout:           30 * time.Second,
		MaxCommandHandlers:       500,
		EnableResourceMonitoring: true,
		MaxChannelNameLength:     256,
		MaxCommandNameLength:     256,
		MaxArgsDataSize:          5_000_000,
		CleanupOnStart:           true,
		CleanupOnShutdown:        true,
		SlowProcessDelay:         200 * time.Millisecond,
	}
}

// HighPerformanceServerConfig relaxes the caps for high-throughput use.
func HighPerformanceServerConfig() Config {
	c := DefaultServerConfig()
	c.MaxConcurrentConnections = 500
	c.MaxMessageSize = 50_000_000
	c.RequestTimeout = 60 * time.Second
	c.MaxCommandHandlers = 1000
	c.MaxChannelNameLength = 512
	c.MaxCommandNameLength = 512
	c.MaxArgsDataSize = 25_000_000
	return c
}

// SecureServerConfig tightens the caps for a restrictive deployment.
func SecureServerConfig() Config {
	c := DefaultServerConfig()
	c.MaxConcurrentConnections = 10
	c.MaxMessageSize = 1_000_000
	c.RequestTimeout = 10 * time.Second
	c.MaxCommandHandlers = 50
	c.MaxChannelNameLength = 128
	c.MaxCommandNameLength = 128
	c.MaxArgsDataSize = 500_000
	return c
}

// Validate checks that every cap is positive.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentConnections <= 0:
		return errs.New(errs.InvalidParams, "maxConcurrentConnections must be greater than 0")
	case c.MaxMessageSize <= 0:
		return errs.New(errs.InvalidParams, "maxMessageSize must be greater than 0")
	case c.RequestTimeout <= 0:
		return errs.New(errs.InvalidParams, "requestTimeout must be greater than 0")
	case c.MaxCommandHandlers <= 0:
		return errs.New(errs.InvalidParams, "maxCommandHandlers must be greater than 0")
	case c.MaxChannelNameLength <= 0:
		return errs.New(errs.InvalidParams, "maxChannelNameLength must be greater than 0")
	case c.MaxCommandNameLength <= 0:
		return errs.New(errs.InvalidParams, "maxCommandNameLength must be greater than 0")
	case c.MaxArgsDataSize <= 0:
		return errs.New(errs.InvalidParams, "maxArgsDataSize must be greater than 0")
	}
	return nil
}
