package gateway_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/framing"
	"github.com/jonwraymond/mcp-runtime/internal/gateway"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

func localDNS() *dnscache.Cache {
	c := dnscache.New(8, time.Minute)
	c.SetResolver(func(_ context.Context, host string) ([]string, error) {
		return []string{"127.0.0.1"}, nil
	})
	return c
}

// echoBackend accepts one connection at a time and replies to every
// framed request with a canned framed response built from respond.
func echoBackend(t *testing.T, respond func(jsonrpc.Request) jsonrpc.Response) (port string, closeAll func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	codec := jsonrpc.DefaultCodec{}
	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					raw, outcome, err := framing.Recv(context.Background(), c, 1<<20, done)
					if err != nil || outcome != framing.RecvOK {
						return
					}
					req, err := codec.DecodeRequest(raw)
					if err != nil {
						return
					}
					resp := respond(req)
					body, err := codec.EncodeResponse(resp)
					if err != nil {
						return
					}
					if err := framing.Send(context.Background(), c, body); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	go func() {
		<-done
		ln.Close()
	}()

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return p, func() { close(done) }
}

func hangingBackend(t *testing.T) (port string, closeAll func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	go func() {
		<-done
		ln.Close()
	}()

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return p, func() {
		close(done)
		for _, c := range conns {
			c.Close()
		}
	}
}

func TestForwardRoundTrip(t *testing.T) {
	port, closeAll := echoBackend(t, func(req jsonrpc.Request) jsonrpc.Response {
		result := []byte(`{"ok":true}`)
		return jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: result}
	})
	defer closeAll()

	f := gateway.NewForwarder([]gateway.BackendConfig{
		{Name: "echo", Host: "backend.test", Port: port, Timeout: 2 * time.Second},
	}, localDNS())
	defer f.Close()

	req, err := jsonrpc.NewRequest(7, "call_tool", map[string]string{"name": "x"})
	require.NoError(t, err)

	resp, err := f.Forward(context.Background(), "echo", req)
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.ID(7), resp.ID)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestForwardUnknownBackendErrors(t *testing.T) {
	f := gateway.NewForwarder(nil, localDNS())
	defer f.Close()

	req, err := jsonrpc.NewRequest(1, "call_tool", nil)
	require.NoError(t, err)

	_, err = f.Forward(context.Background(), "missing", req)
	assert.Error(t, err)
}

func TestForwardShedsRequestsOverRateLimit(t *testing.T) {
	port, closeAll := echoBackend(t, func(req jsonrpc.Request) jsonrpc.Response {
		return jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: []byte(`{}`)}
	})
	defer closeAll()

	f := gateway.NewForwarder([]gateway.BackendConfig{
		{
			Name: "limited", Host: "backend.test", Port: port, Timeout: 2 * time.Second,
			RateLimitPerSecond: 1, RateLimitBurst: 1,
		},
	}, localDNS())
	defer f.Close()

	req, err := jsonrpc.NewRequest(1, "call_tool", nil)
	require.NoError(t, err)

	_, err = f.Forward(context.Background(), "limited", req)
	require.NoError(t, err)

	_, err = f.Forward(context.Background(), "limited", req)
	assert.Error(t, err)
}

func TestForwardTimesOutWhenBackendNeverReplies(t *testing.T) {
	port, closeAll := hangingBackend(t)
	defer closeAll()

	f := gateway.NewForwarder([]gateway.BackendConfig{
		{Name: "slow", Host: "backend.test", Port: port, Timeout: 50 * time.Millisecond},
	}, localDNS())
	defer f.Close()

	req, err := jsonrpc.NewRequest(1, "call_tool", nil)
	require.NoError(t, err)

	_, err = f.Forward(context.Background(), "slow", req)
	assert.Error(t, err)
}
