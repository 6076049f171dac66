package config

import (
	"fmt"
	"net"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/gateway"
	"github.com/jonwraymond/mcp-runtime/internal/transport/mqttclient"
	"github.com/jonwraymond/mcp-runtime/internal/transport/streamable"
)

// ToGatewayBackends converts the loaded backend records into
// gateway.BackendConfig values, splitting each "host:port" address. A
// backend record that leaves its pool sizing at zero falls back to
// envPool, the process-wide defaults read by LoadEnv.
func (c AppConfig) ToGatewayBackends(envPool PoolEnvConfig) ([]gateway.BackendConfig, error) {
	out := make([]gateway.BackendConfig, 0, len(c.Gateway.Backends))
	for _, b := range c.Gateway.Backends {
		host, port, err := net.SplitHostPort(b.Address)
		if err != nil {
			return nil, fmt.Errorf("gateway backend %q: invalid address %q: %w", b.Name, b.Address, err)
		}
		out = append(out, gateway.BackendConfig{
			Name:                    b.Name,
			Host:                    host,
			Port:                    port,
			Timeout:                 msOrDefault(b.TimeoutMs, 0),
			ResourcePrefixes:        b.ResourcePrefixes,
			ResourceRegexes:         b.ResourceRegexes,
			ToolNames:               b.ToolNames,
			PoolMin:                 intOrDefault(b.PoolMin, envPool.Min),
			PoolMax:                 intOrDefault(b.PoolMax, envPool.Max),
			PoolIdleTimeout:         msOrDefault(b.PoolIdleTimeoutMs, 0),
			PoolConnectTimeout:      msOrDefault(b.PoolConnectTimeoutMs, time.Duration(envPool.ConnectTimeoutMs)*time.Millisecond),
			PoolHealthCheckInterval: msOrDefault(b.PoolHealthCheckIntervalMs, 0),
			PoolHealthCheckTimeout:  msOrDefault(b.PoolHealthCheckTimeoutMs, 0),
			MaxMessageSize:          b.MaxMessageSize,
			RateLimitPerSecond:      b.RateLimitPerSecond,
			RateLimitBurst:          b.RateLimitBurst,
		})
	}
	return out, nil
}

// ToStreamableConfig converts the loaded streamable settings into a
// streamable.Config, falling back to envPool for any unset pool field.
func (c AppConfig) ToStreamableConfig(envPool PoolEnvConfig) streamable.Config {
	s := c.Streamable
	return streamable.Config{
		Host:                    s.Host,
		Port:                    s.Port,
		Endpoint:                s.Endpoint,
		APIKey:                  s.APIKey,
		Headers:                 s.Headers,
		MaxMessageSize:          s.MaxMessageSize,
		RequestTimeout:          s.RequestTimeout,
		SSEEnabled:              s.SSEEnabled,
		AutoReconnect:           s.AutoReconnect,
		ReconnectMinBackoff:     s.ReconnectMinBackoff,
		ReconnectMaxBackoff:     s.ReconnectMaxBackoff,
		PoolMin:                 intOrDefault(s.PoolMin, envPool.Min),
		PoolMax:                 intOrDefault(s.PoolMax, envPool.Max),
		PoolIdleTimeout:         s.PoolIdleTimeout,
		PoolConnectTimeout:      durOrDefault(s.PoolConnectTimeout, time.Duration(envPool.ConnectTimeoutMs)*time.Millisecond),
		PoolHealthCheckInterval: s.PoolHealthCheckInterval,
		PoolHealthCheckTimeout:  s.PoolHealthCheckTimeout,
	}
}

// ToMQTTConfig converts the loaded MQTT settings into a
// mqttclient.Config.
func (c AppConfig) ToMQTTConfig() mqttclient.Config {
	m := c.MQTT
	return mqttclient.Config{
		BrokerURL:           m.BrokerURL,
		ClientID:            m.ClientID,
		Username:            m.Username,
		Password:            m.Password,
		TopicPrefix:         m.TopicPrefix,
		QoS:                 m.QoS,
		Retain:              m.Retain,
		CleanStart:          m.CleanStart,
		KeepAlive:           m.KeepAlive,
		WillTopic:           m.WillTopic,
		WillPayload:         []byte(m.WillPayload),
		WillQoS:             m.WillQoS,
		WillRetained:        m.WillRetained,
		MaxInflight:         m.MaxInflight,
		MaxOutboundQueue:    m.MaxOutboundQueue,
		MaxMessageRetries:   uint32(m.MaxMessageRetries),
		RetryInterval:       m.RetryInterval,
		ConnectTimeout:      m.ConnectTimeout,
		RequestTimeout:      m.RequestTimeout,
		ReconnectMinBackoff: m.ReconnectMinBackoff,
		ReconnectMaxBackoff: m.ReconnectMaxBackoff,
		PingInterval:        m.PingInterval,
		SessionDir:          m.SessionDir,
		SessionExpiry:       m.SessionExpiry,
	}
}

func msOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func intOrDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func durOrDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
