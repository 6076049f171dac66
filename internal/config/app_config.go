// Package config defines the runtime's configuration surface: the
// koanf-backed AppConfig loaded from defaults/file/env (see loader.go),
// and the small env.Parse-backed process settings in env.go.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppConfig holds all mcp-runtime configuration loaded from
// files/env/overrides.
type AppConfig struct {
	Server     ServerConfig         `koanf:"server"`
	Logging    LoggingConfig        `koanf:"logging"`
	Gateway    GatewayConfig        `koanf:"gateway"`
	Streamable StreamableClientConfig `koanf:"streamable"`
	MQTT       MQTTClientConfig     `koanf:"mqtt"`
	Auth       AuthConfig           `koanf:"auth"`
}

// ServerConfig holds process identity settings.
type ServerConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// LoggingConfig controls the shared slog.Logger every component falls
// back to when no logger is explicitly injected.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// GatewayConfig holds the list of routable backends, per spec.md §6's
// "{name, address, timeout_ms, resource_prefixes[], resource_regexes[],
// tool_names[]}" backend record.
type GatewayConfig struct {
	ListenHost string          `koanf:"listen_host"`
	ListenPort string          `koanf:"listen_port"`
	Backends   []BackendRecord `koanf:"backends"`
}

// BackendRecord is one gateway backend, as read from config.
type BackendRecord struct {
	Name      string `koanf:"name"`
	Address   string `koanf:"address"` // "host:port"
	TimeoutMs int    `koanf:"timeout_ms"`

	ResourcePrefixes []string `koanf:"resource_prefixes"`
	ResourceRegexes  []string `koanf:"resource_regexes"`
	ToolNames        []string `koanf:"tool_names"`

	PoolMin                   int `koanf:"pool_min"`
	PoolMax                   int `koanf:"pool_max"`
	PoolIdleTimeoutMs         int `koanf:"pool_idle_timeout_ms"`
	PoolConnectTimeoutMs      int `koanf:"pool_connect_timeout_ms"`
	PoolHealthCheckIntervalMs int `koanf:"pool_health_check_interval_ms"`
	PoolHealthCheckTimeoutMs  int `koanf:"pool_health_check_timeout_ms"`

	MaxMessageSize uint32 `koanf:"max_message_size"`

	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`
}

// StreamableClientConfig mirrors streamable.Config's fields one-to-one,
// per spec.md §6's "{host, port, endpoint, credentials, timeouts,
// retry, TLS…}" transport record.
type StreamableClientConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Endpoint string `koanf:"endpoint"`

	APIKey  string            `koanf:"api_key"`
	Headers map[string]string `koanf:"headers"`

	MaxMessageSize uint32 `koanf:"max_message_size"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	SSEEnabled          bool          `koanf:"sse_enabled"`
	AutoReconnect       bool          `koanf:"auto_reconnect"`
	ReconnectMinBackoff time.Duration `koanf:"reconnect_min_backoff"`
	ReconnectMaxBackoff time.Duration `koanf:"reconnect_max_backoff"`

	PoolMin                 int           `koanf:"pool_min"`
	PoolMax                 int           `koanf:"pool_max"`
	PoolIdleTimeout         time.Duration `koanf:"pool_idle_timeout"`
	PoolConnectTimeout      time.Duration `koanf:"pool_connect_timeout"`
	PoolHealthCheckInterval time.Duration `koanf:"pool_health_check_interval"`
	PoolHealthCheckTimeout  time.Duration `koanf:"pool_health_check_timeout"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig is the passthrough TLS shape shared by every transport
// record that can speak TLS. Certificate acquisition itself is out of
// scope (spec.md §1 Non-goals); this only carries what the standard
// library's tls.Config needs to load a cert pair.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert"`
	KeyFile  string `koanf:"key"`
}

// MQTTClientConfig mirrors mqttclient.Config's fields one-to-one.
type MQTTClientConfig struct {
	BrokerURL string `koanf:"broker_url"`
	ClientID  string `koanf:"client_id"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`

	TopicPrefix string `koanf:"topic_prefix"`
	QoS         byte   `koanf:"qos"`
	Retain      bool   `koanf:"retain"`
	CleanStart  bool   `koanf:"clean_start"`

	KeepAlive time.Duration `koanf:"keep_alive"`

	WillTopic    string `koanf:"will_topic"`
	WillPayload  string `koanf:"will_payload"`
	WillQoS      byte   `koanf:"will_qos"`
	WillRetained bool   `koanf:"will_retained"`

	MaxInflight       int `koanf:"max_inflight"`
	MaxOutboundQueue  int `koanf:"max_outbound_queue"`
	MaxMessageRetries int `koanf:"max_message_retries"`

	RetryInterval  time.Duration `koanf:"retry_interval"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	ReconnectMinBackoff time.Duration `koanf:"reconnect_min_backoff"`
	ReconnectMaxBackoff time.Duration `koanf:"reconnect_max_backoff"`

	PingInterval time.Duration `koanf:"ping_interval"`

	SessionDir    string        `koanf:"session_dir"`
	SessionExpiry time.Duration `koanf:"session_expiry"`
}

// AuthConfig configures bearer-token passthrough validation on the
// inbound gateway frontend (Non-goal: nothing deeper than passthrough
// validation of API keys/bearer tokens — see internal/auth).
type AuthConfig struct {
	Enabled bool         `koanf:"enabled"`
	JWT     JWTAuthConfig `koanf:"jwt"`
	APIKeys []string      `koanf:"api_keys"`
}

// JWTAuthConfig configures the bearer-token validator, mirroring
// auth.JWTConfig's shape.
type JWTAuthConfig struct {
	Issuer   string   `koanf:"issuer"`
	Audience []string `koanf:"audience"`
	JWKSURL  string   `koanf:"jwks_url"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// DefaultAppConfig returns the default configuration.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Name:    "mcp-runtime",
			Version: "dev",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Gateway: GatewayConfig{
			ListenHost: "0.0.0.0",
			ListenPort: "7600",
		},
		Streamable: StreamableClientConfig{
			Port:                "8080",
			Endpoint:            "/mcp",
			MaxMessageSize:      4 << 20,
			RequestTimeout:      30 * time.Second,
			AutoReconnect:       true,
			ReconnectMinBackoff: 500 * time.Millisecond,
			ReconnectMaxBackoff: 60 * time.Second,
			PoolMin:             0,
			PoolMax:             4,
			PoolIdleTimeout:     5 * time.Minute,
			PoolConnectTimeout:  5 * time.Second,
			PoolHealthCheckInterval: 30 * time.Second,
			PoolHealthCheckTimeout:  2 * time.Second,
		},
		MQTT: MQTTClientConfig{
			TopicPrefix:         "mcp/",
			QoS:                 1,
			KeepAlive:           30 * time.Second,
			MaxInflight:         32,
			MaxOutboundQueue:    256,
			MaxMessageRetries:   3,
			RetryInterval:       5 * time.Second,
			ConnectTimeout:      10 * time.Second,
			RequestTimeout:      30 * time.Second,
			ReconnectMinBackoff: 500 * time.Millisecond,
			ReconnectMaxBackoff: 60 * time.Second,
			PingInterval:        15 * time.Second,
			SessionExpiry:       24 * time.Hour,
		},
	}
}

// Validate checks the configuration for errors.
func (c *AppConfig) Validate() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format %q, must be one of: text, json", c.Logging.Format)
	}

	if strings.TrimSpace(c.Gateway.ListenPort) == "" {
		return errors.New("gateway listen port is required")
	}

	seenBackendNames := make(map[string]struct{}, len(c.Gateway.Backends))
	for _, b := range c.Gateway.Backends {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return errors.New("gateway backend name is required")
		}
		if strings.TrimSpace(b.Address) == "" {
			return fmt.Errorf("gateway backend %q address is required", name)
		}
		if _, exists := seenBackendNames[name]; exists {
			return fmt.Errorf("duplicate gateway backend name %q", name)
		}
		seenBackendNames[name] = struct{}{}
	}

	if c.Streamable.Host != "" && c.Streamable.Port == "" {
		return errors.New("streamable transport port is required when host is set")
	}

	if c.MQTT.BrokerURL != "" {
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos %d, must be 0-2", c.MQTT.QoS)
		}
	}

	return nil
}
