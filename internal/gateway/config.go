// Package gateway routes an incoming JSON-RPC request to the right
// backend MCP server and forwards it over that backend's pooled,
// length-prefixed connection.
package gateway

import (
	"regexp"
	"time"
)

// BackendConfig describes one routable MCP server: its address, the
// connection pool sizing to reach it, and the routing rules that match
// requests to it.
type BackendConfig struct {
	Name    string
	Host    string
	Port    string
	Timeout time.Duration

	ResourcePrefixes []string
	ResourceRegexes  []string
	ToolNames        []string

	PoolMin                 int
	PoolMax                 int
	PoolIdleTimeout         time.Duration
	PoolConnectTimeout      time.Duration
	PoolHealthCheckInterval time.Duration
	PoolHealthCheckTimeout  time.Duration

	MaxMessageSize uint32

	// RateLimitPerSecond bounds sustained requests forwarded to this
	// backend; RateLimitBurst bounds the burst above that sustained
	// rate. Zero disables shedding for the backend (unlimited).
	RateLimitPerSecond float64
	RateLimitBurst      int
}

func (b BackendConfig) withDefaults() BackendConfig {
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
	if b.PoolMax <= 0 {
		b.PoolMax = 4
	}
	if b.MaxMessageSize == 0 {
		b.MaxMessageSize = 4 << 20
	}
	if b.RateLimitPerSecond > 0 && b.RateLimitBurst <= 0 {
		b.RateLimitBurst = 1
	}
	return b
}

// compiledBackend is a BackendConfig plus its pre-compiled resource
// regexes, built once at registration time so routing never compiles a
// pattern on the request path.
type compiledBackend struct {
	cfg     BackendConfig
	regexes []*regexp.Regexp
}

func compileBackend(cfg BackendConfig) (compiledBackend, error) {
	cfg = cfg.withDefaults()
	cb := compiledBackend{cfg: cfg}
	for _, pattern := range cfg.ResourceRegexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return compiledBackend{}, err
		}
		cb.regexes = append(cb.regexes, re)
	}
	return cb, nil
}
