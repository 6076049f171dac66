package mqttclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
	"github.com/jonwraymond/mcp-runtime/internal/registry"
	"github.com/jonwraymond/mcp-runtime/internal/transport"
)

// Stats mirrors the fields the spec requires observable for a running
// MQTT transport.
type Stats struct {
	Connected         bool
	ReconnectAttempts uint64
	ReconnectFailures uint64
	PingsSent         uint64
	PingsMissed       uint64
	Published         uint64
	Acked             uint64
	Received          uint64
	InflightCount     int
}

// NotificationHandler receives a server-pushed message carrying no
// request ID to correlate against.
type NotificationHandler func(payload []byte)

type publishJob struct {
	packetID uint16
	topic    string
	payload  []byte
	qos      byte
	retain   bool
}

// Client is the client-side MQTT transport. It owns a paho.mqtt.golang
// connection but disables the library's own auto-reconnect so that our
// own jittered-backoff loop (shared with the streamable transport via
// transport.NextBackoff/Jitter) governs reconnection, subscription
// restoration, and session persistence.
type Client struct {
	cfg      Config
	clientID string
	topics   topics

	registry *registry.Registry
	codec    jsonrpc.Codec

	packetIDs *packetIDAllocator
	inflight  *inflightTable
	store     *sessionStore

	statsMu sync.Mutex
	stats   Stats

	mu             sync.Mutex
	mqttCli        mqtt.Client
	connected      bool
	closed         bool
	notificationCb NotificationHandler

	outbound chan publishJob
	lostCh   chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs an MQTT transport. Call Connect to establish the
// broker session before issuing Call.
func New(cfg Config, reg *registry.Registry) *Client {
	cfg = cfg.withDefaults()
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "mcp-" + uuid.NewString()
	}

	c := &Client{
		cfg:       cfg,
		clientID:  clientID,
		topics:    resolveTopics(cfg.TopicPrefix, clientID),
		registry:  reg,
		codec:     jsonrpc.DefaultCodec{},
		packetIDs: newPacketIDAllocator(),
		inflight:  newInflightTable(cfg.MaxInflight),
		outbound:  make(chan publishJob, cfg.MaxOutboundQueue),
		lostCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	if cfg.SessionDir != "" {
		c.store = newSessionStore(cfg.SessionDir, cfg.SessionExpiry)
	}
	return c
}

func (c *Client) Name() string { return "mqtt" }

func (c *Client) Info() transport.Info {
	return transport.Info{Name: "mqtt", Addr: c.cfg.BrokerURL, Path: c.topics.request}
}

func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()
	s.InflightCount = c.inflight.len()
	s.Connected = c.isConnected()
	return s
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnNotification registers the callback invoked for every message
// delivered on the notification topic.
func (c *Client) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	c.notificationCb = h
	c.mu.Unlock()
}

// Connect opens the broker session, restores any persisted session
// state for this client ID, subscribes to the response/notification
// topics, and starts the message-retry, reconnect, ping, and (if
// enabled) session-cleanup background loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.store != nil {
		if sf, ok, err := c.store.load(c.clientID); err == nil && ok {
			c.restoreSession(sf)
		}
	}

	if err := c.connectOnce(ctx); err != nil {
		return err
	}

	c.wg.Add(4)
	go c.publishWorker()
	go c.messageRetryLoop()
	go c.reconnectLoop()
	go c.pingLoop()
	if c.store != nil {
		c.wg.Add(1)
		go c.sessionCleanupLoop()
	}
	return nil
}

func (c *Client) restoreSession(sf sessionFile) {
	c.packetIDs.setNext(sf.LastPacketID + 1)
	msgs := make([]*InflightMessage, 0, len(sf.Inflight))
	for _, m := range sf.Inflight {
		c.packetIDs.reserve(m.PacketID)
		msgs = append(msgs, &InflightMessage{
			PacketID: m.PacketID,
			Topic:    m.Topic,
			Payload:  m.Payload,
			QoS:      byte(m.QoS),
			Retain:   m.Retain != 0,
			SentAt:   time.UnixMilli(int64(m.SentMs)),
			Retries:  m.Retry,
		})
	}
	c.inflight.restore(msgs)
}

func (c *Client) connectOnce(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.clientID).
		SetCleanSession(c.cfg.CleanStart).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.cfg.WillTopic != "" {
		opts.SetWill(c.cfg.WillTopic, string(c.cfg.WillPayload), c.cfg.WillQoS, c.cfg.WillRetained)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return errs.New(errs.KindTimeout, "mqttclient: connect timed out")
	}
	if err := token.Error(); err != nil {
		return errs.Wrap(errs.KindTransport, "mqttclient: connect failed", err)
	}

	c.mu.Lock()
	c.mqttCli = cli
	c.mu.Unlock()
	return nil
}

// onConnect (re)subscribes to the response/notification topics. It
// runs both on the initial connect and after every successful
// reconnect, matching the spec's "on success, restores subscriptions"
// rule.
func (c *Client) onConnect(cli mqtt.Client) {
	cli.Subscribe(c.topics.response, c.cfg.QoS, c.onResponseMessage).Wait()
	cli.Subscribe(c.topics.notification, c.cfg.QoS, c.onNotificationMessage).Wait()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if c.store != nil {
		c.persistSession()
	}
	slog.Info("mqttclient: connected", "client_id", c.clientID, "broker", c.cfg.BrokerURL)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	slog.Warn("mqttclient: connection lost", "error", err)
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	select {
	case c.lostCh <- struct{}{}:
	default:
	}
}

// onResponseMessage dispatches a broker-delivered response to the
// pending registry by the JSON-RPC ID carried in its payload, exactly
// as the streamable transport's SSE path does for asynchronously
// delivered responses.
func (c *Client) onResponseMessage(_ mqtt.Client, msg mqtt.Message) {
	c.statsMu.Lock()
	c.stats.Received++
	c.statsMu.Unlock()

	resp, err := c.codec.DecodeResponse(msg.Payload())
	if err != nil {
		slog.Warn("mqttclient: undecodable response payload", "error", err)
		return
	}
	if resp.Error != nil {
		c.registry.Fail(resp.ID, resp.Error.Code, resp.Error.Message)
		return
	}
	c.registry.Complete(resp.ID, resp.Result)
}

func (c *Client) onNotificationMessage(_ mqtt.Client, msg mqtt.Message) {
	c.statsMu.Lock()
	c.stats.Received++
	c.statsMu.Unlock()

	c.mu.Lock()
	h := c.notificationCb
	c.mu.Unlock()
	if h != nil {
		h(msg.Payload())
	}
}

// Call publishes a JSON-RPC request to the request topic and awaits its
// response on the response topic, correlated by ID through the shared
// pending registry.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.registry.NextID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParams, "mqttclient: encode params", err)
	}

	res, err := c.registry.SendAndWait(ctx, req, c.cfg.RequestTimeout, c.sendPublish)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

func (c *Client) sendPublish(req jsonrpc.Request) error {
	body, err := c.codec.EncodeRequest(req)
	if err != nil {
		return errs.Wrap(errs.KindParse, "mqttclient: encode request", err)
	}

	job := publishJob{topic: c.topics.request, payload: body, qos: c.cfg.QoS, retain: false}

	if c.cfg.QoS > 0 {
		id, err := c.packetIDs.allocate()
		if err != nil {
			return err
		}
		msg := &InflightMessage{PacketID: id, Topic: job.topic, Payload: body, QoS: job.qos, SentAt: time.Now()}
		if !c.inflight.tryAdd(msg) {
			c.packetIDs.release(id)
			return errs.New(errs.KindTransport, "mqttclient: max inflight messages reached")
		}
		job.packetID = id
	}

	select {
	case c.outbound <- job:
		return nil
	default:
		if job.packetID != 0 {
			c.inflight.remove(job.packetID)
			c.packetIDs.release(job.packetID)
		}
		return errs.New(errs.KindTransport, "mqttclient: outbound queue full")
	}
}

// publishWorker drains the bounded outbound queue and hands each job to
// the broker connection, per the spec's "broker I/O task drains the
// queue on writability events".
func (c *Client) publishWorker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case job := <-c.outbound:
			c.doPublish(job)
		}
	}
}

func (c *Client) doPublish(job publishJob) {
	c.mu.Lock()
	cli := c.mqttCli
	connected := c.connected
	c.mu.Unlock()
	if cli == nil || !connected {
		return // message stays in-flight/queued; the retry loop redelivers once reconnected
	}

	token := cli.Publish(job.topic, job.qos, job.retain, job.payload)
	c.statsMu.Lock()
	c.stats.Published++
	c.statsMu.Unlock()

	if job.qos == 0 {
		return
	}
	packetID := job.packetID
	go func() {
		token.Wait()
		if token.Error() == nil {
			c.inflight.remove(packetID)
			c.packetIDs.release(packetID)
			c.statsMu.Lock()
			c.stats.Acked++
			c.statsMu.Unlock()
		}
	}()
}

// messageRetryLoop redelivers in-flight messages that haven't been
// acknowledged within RetryInterval, up to MaxMessageRetries. A message
// whose retries are exhausted is dropped from the in-flight table and
// counted in Stats.ReconnectFailures; the pending call it carried is not
// failed here and ends when its RequestTimeout elapses.
func (c *Client) messageRetryLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			for _, m := range c.inflight.dueForRetry(c.cfg.RetryInterval, c.cfg.MaxMessageRetries) {
				c.inflight.markRetried(m.PacketID, now)
				select {
				case c.outbound <- publishJob{packetID: m.PacketID, topic: m.Topic, payload: m.Payload, qos: m.QoS, retain: m.Retain}:
				default:
				}
			}
			for range c.inflight.exhausted(c.cfg.MaxMessageRetries) {
				c.statsMu.Lock()
				c.stats.ReconnectFailures++ // surfaced as a delivery-failure counter
				c.statsMu.Unlock()
			}
		}
	}
}

// reconnectLoop watches for connection-lost notifications and retries
// with the shared jittered exponential backoff until the connection is
// restored or the transport is closed.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	backoff := c.cfg.ReconnectMinBackoff

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.lostCh:
		}

		for {
			select {
			case <-c.stopCh:
				return
			case <-time.After(transport.Jitter(backoff)):
			}

			if c.isConnected() {
				break
			}

			c.statsMu.Lock()
			c.stats.ReconnectAttempts++
			c.statsMu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
			err := c.connectOnce(ctx)
			cancel()
			if err == nil {
				backoff = c.cfg.ReconnectMinBackoff
				break
			}

			slog.Warn("mqttclient: reconnect attempt failed", "error", err)
			c.statsMu.Lock()
			c.stats.ReconnectFailures++
			c.statsMu.Unlock()
			backoff = transport.NextBackoff(backoff, c.cfg.ReconnectMaxBackoff)
		}
	}
}

// pingLoop tracks connection liveness as an application-level stat.
// The broker keep-alive PINGREQ/PINGRESP exchange itself is owned by
// the underlying paho client, so this loop does not emit wire-level
// pings; it samples connection state once per PingInterval so
// PingsSent/PingsMissed are observable the way the spec's ping monitor
// describes, without duplicating the library's own keep-alive machinery.
func (c *Client) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.statsMu.Lock()
			c.stats.PingsSent++
			if !c.isConnected() {
				c.stats.PingsMissed++
			}
			c.statsMu.Unlock()
		}
	}
}

func (c *Client) sessionCleanupLoop() {
	defer c.wg.Done()
	interval := c.cfg.SessionExpiry / 4
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.store.sweep(now)
		}
	}
}

func (c *Client) persistSession() {
	now := time.Now()
	subs := []subscription{
		{Topic: c.topics.response, QoS: int32(c.cfg.QoS)},
		{Topic: c.topics.notification, QoS: int32(c.cfg.QoS)},
	}

	var inflightEntries []sessionInflight
	for _, m := range c.inflight.snapshot() {
		inflightEntries = append(inflightEntries, sessionInflight{
			PacketID: m.PacketID,
			Topic:    m.Topic,
			Payload:  m.Payload,
			QoS:      int32(m.QoS),
			Retain:   boolToInt32(m.Retain),
			SentMs:   uint64(m.SentAt.UnixMilli()),
			Retry:    m.Retries,
		})
	}

	sf := sessionFile{
		ClientID:     c.clientID,
		CreatedMs:    uint64(now.UnixMilli()),
		LastAccessMs: uint64(now.UnixMilli()),
		ExpirySecs:   uint32(c.cfg.SessionExpiry / time.Second),
		Subs:         subs,
		LastPacketID: c.packetIDs.lastIssued(),
		Inflight:     inflightEntries,
	}
	if err := c.store.save(sf); err != nil {
		slog.Warn("mqttclient: failed to persist session", "error", err)
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Close stops all background loops and disconnects from the broker. If
// session persistence is enabled, the final state is flushed first so
// a future process can resume with the same client ID.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cli := c.mqttCli
	c.mu.Unlock()

	if c.store != nil {
		c.persistSession()
	}

	close(c.stopCh)
	c.wg.Wait()

	if cli != nil {
		cli.Disconnect(250)
	}
	if c.store != nil {
		c.store.close()
	}
	return nil
}
