// Package client implements the Janus client core: sending requests over an
// ephemeral reply socket, correlating responses, and the pending-request
// registry that backs cancellation and status queries.
package client

import (
	"time"

	"github.com/janusrpc/janus/errs"
)

// Config holds the client's tunable caps and defaults, mirroring
// UnixSockApiClientConfig from the system this spec was distilled from.
type Config struct {
	MaxConcurrentConnections int
	MaxMessageSize           int
	ConnectionTimeout        time.Duration
	MaxPendingCommands       int
	MaxCommandHandlers       int
	EnableResourceMonitoring bool
	MaxChannelNameLength     int
	MaxCommandNameLength     int
	MaxArgsDataSize          int

	// EnableValidation turns on manifest-driven argument/response
	// validation (C4/C5). When true and no manifest has been supplied,
	// the client fetches one lazily on the first validated call.
	EnableValidation bool

	// SocketDir overrides the directory ephemeral reply sockets are
	// created in. Empty means "the target socket's own directory".
	SocketDir string

	// AllowedSocketPrefixes restricts where the target socket and ephemeral
	// reply sockets may resolve to. Empty means sockutil.DefaultAllowedPrefixes
	// (/tmp, /var/run).
	AllowedSocketPrefixes []string
}

// DefaultClientConfig returns the baseline configuration.
func DefaultClientConfig() Config {
	return Config{
		MaxConcurrentConnections: 100,
		MaxMessageSize:           10_000_000,
		ConnectionTimeout:        30 * time.Second,
		MaxPendingCommands:       1000,
		MaxCommandHandlers:       500,
		EnableResourceMonitoring: true,
		MaxChannelNameLength:     256,
		MaxCommandNameLength:     256,
		MaxArgsDataSize:          5_000_000,
		EnableValidation:         true,
	}
}

// HighPerformanceClientConfig relaxes the caps for high-throughput use.
func HighPerformanceClientConfig() Config {
	c := DefaultClientConfig()
	c.MaxConcurrentConnections = 500
	c.MaxMessageSize = 50_000_000
	c.ConnectionTimeout = 60 * time.Second
	c.MaxPendingCommands = 5000
	c.MaxCommandHandlers = 1000
	c.MaxChannelNameLength = 512
	c.MaxCommandNameLength = 512
	c.MaxArgsDataSize = 25_000_000
	return c
}

// SecureClientConfig tightens the caps for a restrictive deployment.
func SecureClientConfig() Config {
	c := DefaultClientConfig()
	c.MaxConcurrentConnections = 10
	c.MaxMessageSize = 1_000_000
	c.ConnectionTimeout = 10 * time.Second
	c.MaxPendingCommands = 100
	c.MaxCommandHandlers = 50
	c.MaxChannelNameLength = 128
	c.MaxCommandNameLength = 128
	c.MaxArgsDataSize = 500_000
	return c
}

// Validate checks that every cap is non-zero/non-negative.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentConnections <= 0:
		return errs.New(errs.InvalidParams, "maxConcurrentConnections must be greater than 0")
	case c.MaxMessageSize <= 0:
		return errs.New(errs.InvalidParams, "maxMessageSize must be greater than 0")
	case c.ConnectionTimeout <= 0:
		return errs.New(errs.InvalidParams, "connectionTimeout must be greater than 0")
	case c.MaxPendingCommands <= 0:
		return errs.New(errs.InvalidParams, "maxPendingCommands must be greater than 0")
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
