// Package streamable implements the client side of the MCP 2025-03-26
// Streamable HTTP profile: a POST request/response path built on the
// shared connection pool, and an optional long-lived SSE stream for
// server-initiated events.
package streamable

import "time"

// Config is a streamable HTTP transport's configuration.
type Config struct {
	Host     string
	Port     string
	Endpoint string // e.g. "/mcp"

	APIKey  string // sent as "Authorization: Bearer <key>" when non-empty
	Headers map[string]string

	MaxMessageSize uint32
	RequestTimeout time.Duration

	SSEEnabled          bool
	AutoReconnect       bool
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	PoolMin                 int
	PoolMax                 int
	PoolIdleTimeout         time.Duration
	PoolConnectTimeout      time.Duration
	PoolHealthCheckInterval time.Duration
	PoolHealthCheckTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = "/mcp"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 4 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ReconnectMinBackoff <= 0 {
		c.ReconnectMinBackoff = 500 * time.Millisecond
	}
	if c.ReconnectMaxBackoff <= 0 {
		c.ReconnectMaxBackoff = 60 * time.Second
	}
	if c.PoolMax <= 0 {
		c.PoolMax = 4
	}
	return c
}

const sessionHeaderName = "Mcp-Session-Id"
