// Package mqttclient implements the client side of the MQTT transport:
// topic-templated publish/subscribe over a broker, QoS-aware in-flight
// tracking with our own retry-on-timeout layered atop the broker's own
// acknowledgment flow, a jittered reconnect loop, and optional
// file-persisted session state.
package mqttclient

import "time"

// Config is one MQTT transport's configuration.
type Config struct {
	BrokerURL string // e.g. "tcp://localhost:1883"
	ClientID  string // generated if empty

	Username string
	Password string

	TopicPrefix string // topics are "<prefix>request/<client_id>" etc.

	QoS          byte
	Retain       bool
	CleanStart   bool
	KeepAlive    time.Duration
	WillTopic    string
	WillPayload  []byte
	WillQoS      byte
	WillRetained bool

	MaxInflight       int
	MaxOutboundQueue  int
	MaxMessageRetries uint32
	RetryInterval     time.Duration

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	PingInterval time.Duration

	// SessionDir, when non-empty, enables file-persisted sessions: one
	// file per client ID under this directory.
	SessionDir    string
	SessionExpiry time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "mcp/"
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 32
	}
	if c.MaxOutboundQueue <= 0 {
		c.MaxOutboundQueue = 256
	}
	if c.MaxMessageRetries == 0 {
		c.MaxMessageRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
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
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.SessionExpiry <= 0 {
		c.SessionExpiry = 24 * time.Hour
	}
	return c
}

// topics is the set of topics resolved once per connection from the
// configured prefix and client ID.
type topics struct {
	request      string
	response     string
	notification string
}

func resolveTopics(prefix, clientID string) topics {
	return topics{
		request:      prefix + "request/" + clientID,
		response:     prefix + "response/" + clientID,
		notification: prefix + "notification/" + clientID,
	}
}
