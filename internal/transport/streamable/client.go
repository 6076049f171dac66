package streamable

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
	"github.com/jonwraymond/mcp-runtime/internal/pool"
	"github.com/jonwraymond/mcp-runtime/internal/registry"
	"github.com/jonwraymond/mcp-runtime/internal/transport"
)

// Client is the client-side Streamable HTTP transport: a pooled POST
// request/response path plus an optional long-lived SSE stream.
//
// Invariant: at most one SSE stream runs per Client, matching the
// spec's SseConnection lifetime rule.
type Client struct {
	cfg      Config
	pool     *pool.Pool
	registry *registry.Registry
	codec    jsonrpc.Codec

	mu        sync.Mutex
	sessionID string
	state     State
	stateCb   StateCallback
	closed    bool

	sseMu       sync.Mutex
	sseActive   bool
	sseStop     chan struct{}
	sseCb       EventCallback
	lastEventID string
}

// New constructs a streamable HTTP client over an already-configured
// connection pool (which owns its own dialing/health-check/DNS-cache
// wiring) and pending-request registry.
func New(cfg Config, p *pool.Pool, reg *registry.Registry) *Client {
	return &Client{
		cfg:      cfg.withDefaults(),
		pool:     p,
		registry: reg,
		codec:    jsonrpc.DefaultCodec{},
	}
}

func (c *Client) Name() string { return "streamable_http" }

func (c *Client) Info() transport.Info {
	return transport.Info{Name: "streamable_http", Addr: net.JoinHostPort(c.cfg.Host, c.cfg.Port), Path: c.cfg.Endpoint}
}

// SessionID returns the current MCP session id, or "" if none has been
// established yet.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// OnStateChange registers a callback invoked on every state transition.
func (c *Client) OnStateChange(cb StateCallback) {
	c.mu.Lock()
	c.stateCb = cb
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.stateCb
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Call sends a JSON-RPC request over the POST path and waits for its
// response, which may arrive inline on the POST response or later via
// the SSE stream when the server replies 202 Accepted.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.registry.NextID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParams, "streamable: encode params", err)
	}

	res, err := c.registry.SendAndWait(ctx, req, c.cfg.RequestTimeout, c.sendPost)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// receive_sync is unsupported: this transport is callback-driven.
func (c *Client) ReceiveSync(context.Context) (json.RawMessage, error) {
	return nil, errs.New(errs.KindInvalidParams, "streamable: receive_sync is unsupported")
}

func (c *Client) endpointURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(c.cfg.Host, c.cfg.Port), c.cfg.Endpoint)
}

func (c *Client) sendPost(req jsonrpc.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	pc, err := c.pool.Get(ctx)
	if err != nil {
		c.setState(StateError)
		return errs.Wrap(errs.KindTransport, "streamable: pool get failed", err)
	}

	body, err := c.codec.EncodeRequest(req)
	if err != nil {
		c.pool.Release(pc, true)
		return errs.Wrap(errs.KindParse, "streamable: encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(body))
	if err != nil {
		c.pool.Release(pc, true)
		return errs.Wrap(errs.KindInternal, "streamable: build request", err)
	}
	c.applyCommonHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))

	c.setState(StateConnecting)

	if err := httpReq.Write(pc.Conn()); err != nil {
		c.pool.Release(pc, false)
		c.setState(StateError)
		return errs.Wrap(errs.KindTransport, "streamable: write request", err)
	}

	resp, err := http.ReadResponse(pc.Reader(), httpReq)
	if err != nil {
		c.pool.Release(pc, false)
		c.setState(StateError)
		return errs.Wrap(errs.KindTransport, "streamable: read response", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeaderName); sid != "" {
		c.setSessionID(sid)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.cfg.MaxMessageSize)+1))
	valid := err == nil && !resp.Close && uint32(len(raw)) <= c.cfg.MaxMessageSize
	c.pool.Release(pc, valid)
	if err != nil {
		c.setState(StateError)
		return errs.Wrap(errs.KindParse, "streamable: read body", err)
	}
	if uint32(len(raw)) > c.cfg.MaxMessageSize {
		c.setState(StateError)
		return errs.New(errs.KindParse, "streamable: response exceeds max message size")
	}

	c.setState(StateConnected)

	if resp.StatusCode == http.StatusAccepted {
		// The real response will arrive later via the SSE stream, keyed
		// by the same request id; this call leaves the pending entry
		// registered for that delivery.
		return nil
	}

	return c.deliverResponseBytes(raw)
}

func (c *Client) deliverResponseBytes(raw []byte) error {
	resp, err := c.codec.DecodeResponse(raw)
	if err != nil {
		return errs.Wrap(errs.KindParse, "streamable: decode response", err)
	}
	if resp.Error != nil {
		c.registry.Fail(resp.ID, resp.Error.Code, resp.Error.Message)
		return nil
	}
	c.registry.Complete(resp.ID, resp.Result)
	return nil
}

func (c *Client) applyCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "mcp-runtime-streamable-client")
	req.Header.Set("Connection", "keep-alive")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if sid := c.SessionID(); sid != "" {
		req.Header.Set(sessionHeaderName, sid)
	}
}

// EnableSSE starts the long-lived GET/SSE stream in the background, if
// not already running. Events are delivered to cb in wire order.
func (c *Client) EnableSSE(cb EventCallback) {
	c.sseMu.Lock()
	if c.sseActive {
		c.sseMu.Unlock()
		return
	}
	c.sseActive = true
	c.sseStop = make(chan struct{})
	c.sseCb = cb
	stop := c.sseStop
	c.sseMu.Unlock()

	go c.sseLoop(stop)
}

func (c *Client) sseLoop(stop chan struct{}) {
	backoff := c.cfg.ReconnectMinBackoff
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := c.runSSEOnce(stop)
		if err != nil {
			slog.Warn("streamable: sse stream ended", "error", err)
			c.setState(StateError)
		}
		if !c.cfg.AutoReconnect {
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(transport.Jitter(backoff)):
		}
		backoff = transport.NextBackoff(backoff, c.cfg.ReconnectMaxBackoff)
	}
}

func (c *Client) runSSEOnce(stop chan struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	pc, err := c.pool.Get(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransport, "streamable: sse pool get failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(), nil)
	if err != nil {
		c.pool.Release(pc, true)
		return errs.Wrap(errs.KindInternal, "streamable: build sse request", err)
	}
	c.applyCommonHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.setState(StateConnecting)
	if err := httpReq.Write(pc.Conn()); err != nil {
		c.pool.Release(pc, false)
		return errs.Wrap(errs.KindTransport, "streamable: write sse request", err)
	}

	resp, err := http.ReadResponse(pc.Reader(), httpReq)
	if err != nil {
		c.pool.Release(pc, false)
		return errs.Wrap(errs.KindTransport, "streamable: read sse response", err)
	}
	if resp.StatusCode != http.StatusOK || !isEventStream(resp.Header.Get("Content-Type")) {
		resp.Body.Close()
		c.pool.Release(pc, false)
		return errs.New(errs.KindTransport, fmt.Sprintf("streamable: sse handshake failed: status=%d content-type=%q", resp.StatusCode, resp.Header.Get("Content-Type")))
	}

	if sid := resp.Header.Get(sessionHeaderName); sid != "" {
		c.setSessionID(sid)
	}
	c.setState(StateSseConnected)
	// This connection is held for the stream's entire lifetime rather
	// than returned to the idle pool after one request/response.
	defer c.pool.Release(pc, false)
	defer resp.Body.Close()

	reader := bufio.NewReaderSize(resp.Body, 32*1024)
	for {
		ev, err := readEvent(ctx, reader)
		if err != nil {
			return err
		}
		if ev.ID != "" {
			c.setLastEventID(ev.ID)
		}

		cb := c.getSSECallback()
		if cb != nil {
			cb(ev)
		}

		if ev.Event != "message" || ev.Data == "" {
			continue
		}
		c.dispatchSSEMessage([]byte(ev.Data))
	}
}

func (c *Client) getSSECallback() EventCallback {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	return c.sseCb
}

func (c *Client) setLastEventID(id string) {
	c.sseMu.Lock()
	c.lastEventID = id
	c.sseMu.Unlock()
}

// LastEventID returns the id field of the most recently delivered SSE
// event, or "" if no event carrying an id has been received yet.
func (c *Client) LastEventID() string {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	return c.lastEventID
}

// dispatchSSEMessage decodes a server-delivered message and completes
// the matching pending request, for responses that arrived
// asynchronously after a 202-Accepted POST.
func (c *Client) dispatchSSEMessage(data []byte) {
	resp, err := c.codec.DecodeResponse(data)
	if err != nil || resp.ID == 0 {
		return
	}
	if resp.Error != nil {
		c.registry.Fail(resp.ID, resp.Error.Code, resp.Error.Message)
		return
	}
	c.registry.Complete(resp.ID, resp.Result)
}

func isEventStream(contentType string) bool {
	const want = "text/event-stream"
	if len(contentType) < len(want) {
		return false
	}
	for i := 0; i < len(want); i++ {
		a, b := contentType[i], want[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// Terminate sends DELETE with the current session header; on success
// the transport forgets its session.
func (c *Client) Terminate(ctx context.Context) error {
	sid := c.SessionID()
	if sid == "" {
		return nil
	}

	pc, err := c.pool.Get(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransport, "streamable: terminate pool get failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpointURL(), nil)
	if err != nil {
		c.pool.Release(pc, true)
		return errs.Wrap(errs.KindInternal, "streamable: build delete request", err)
	}
	c.applyCommonHeaders(httpReq)

	if err := httpReq.Write(pc.Conn()); err != nil {
		c.pool.Release(pc, false)
		return errs.Wrap(errs.KindTransport, "streamable: write delete request", err)
	}
	resp, err := http.ReadResponse(pc.Reader(), httpReq)
	if err != nil {
		c.pool.Release(pc, false)
		return errs.Wrap(errs.KindTransport, "streamable: read delete response", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.pool.Release(pc, resp.StatusCode < 500)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.setSessionID("")
	}
	return nil
}

// Close stops the SSE stream (if running) and closes the pool. It does
// not send a session-termination DELETE; call Terminate first if that
// is required.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.sseMu.Lock()
	if c.sseActive {
		close(c.sseStop)
		c.sseActive = false
	}
	c.sseMu.Unlock()

	return c.pool.Close()
}
