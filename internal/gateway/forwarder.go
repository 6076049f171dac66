package gateway

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/framing"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
	"github.com/jonwraymond/mcp-runtime/internal/pool"
)

// Forwarder owns one connection pool per backend and speaks the shared
// length-prefixed framing protocol over whichever connection it
// borrows, per spec §4.G's forward() steps.
type Forwarder struct {
	codec jsonrpc.Codec

	mu       sync.RWMutex
	pools    map[string]*pool.Pool
	cfgs     map[string]BackendConfig
	limiters map[string]*rate.Limiter
}

// NewForwarder builds a Forwarder with one pool per backend, sharing a
// single DNS cache across all of them. A backend with RateLimitPerSecond
// set gets its own token-bucket limiter so one noisy backend's traffic
// can be shed without touching the others.
func NewForwarder(backends []BackendConfig, dns *dnscache.Cache) *Forwarder {
	f := &Forwarder{
		codec:    jsonrpc.DefaultCodec{},
		pools:    make(map[string]*pool.Pool, len(backends)),
		cfgs:     make(map[string]BackendConfig, len(backends)),
		limiters: make(map[string]*rate.Limiter, len(backends)),
	}
	for _, cfg := range backends {
		cfg = cfg.withDefaults()
		f.cfgs[cfg.Name] = cfg
		f.pools[cfg.Name] = pool.New(pool.Config{
			Host:                cfg.Host,
			Port:                cfg.Port,
			Min:                 cfg.PoolMin,
			Max:                 cfg.PoolMax,
			IdleTimeout:         cfg.PoolIdleTimeout,
			ConnectTimeout:      cfg.PoolConnectTimeout,
			HealthCheckInterval: cfg.PoolHealthCheckInterval,
			HealthCheckTimeout:  cfg.PoolHealthCheckTimeout,
		}, dns)
		if cfg.RateLimitPerSecond > 0 {
			f.limiters[cfg.Name] = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
		}
	}
	return f
}

// Forward borrows a connection to backendName's pool, sends req framed
// and length-prefixed, and waits for one framed response within the
// backend's configured timeout.
func (f *Forwarder) Forward(ctx context.Context, backendName string, req jsonrpc.Request) (jsonrpc.Response, error) {
	f.mu.RLock()
	p, ok := f.pools[backendName]
	cfg := f.cfgs[backendName]
	limiter := f.limiters[backendName]
	f.mu.RUnlock()
	if !ok {
		return jsonrpc.Response{}, errs.New(errs.KindInternal, fmt.Sprintf("gateway: unknown backend %q", backendName))
	}
	if limiter != nil && !limiter.Allow() {
		return jsonrpc.Response{}, errs.New(errs.KindTransport, fmt.Sprintf("gateway: rate limit exceeded for backend %q", backendName))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	pc, err := p.Get(ctx)
	if err != nil {
		return jsonrpc.Response{}, errs.Wrap(errs.KindTransport, "gateway: borrow connection", err)
	}

	body, err := f.codec.EncodeRequest(req)
	if err != nil {
		p.Release(pc, true)
		return jsonrpc.Response{}, errs.Wrap(errs.KindParse, "gateway: encode request", err)
	}

	if err := framing.Send(ctx, pc.Conn(), body); err != nil {
		p.Release(pc, false)
		return jsonrpc.Response{}, errs.Wrap(errs.KindTransport, "gateway: send to backend", err)
	}

	raw, outcome, err := framing.Recv(ctx, pc.Reader(), cfg.MaxMessageSize, ctx.Done())
	if err != nil || outcome != framing.RecvOK {
		p.Release(pc, false)
		return jsonrpc.Response{}, errs.Wrap(errs.KindTransport, "gateway: receive from backend", err)
	}

	p.Release(pc, true)

	resp, err := f.codec.DecodeResponse(raw)
	if err != nil {
		return jsonrpc.Response{}, errs.Wrap(errs.KindParse, "gateway: decode backend response", err)
	}
	return resp, nil
}

// Close closes every backend's pool.
func (f *Forwarder) Close() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var firstErr error
	for _, p := range f.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
