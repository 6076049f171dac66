package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

// Gateway ties routing to forwarding: HandleRequest is the single entry
// point a server-side transport calls for every inbound request.
type Gateway struct {
	router    *Router
	forwarder *Forwarder
}

// New builds a Gateway over the given backend configs, sharing one DNS
// cache (sized for the backend count) across every backend's pool.
func New(backends []BackendConfig) (*Gateway, error) {
	router, err := NewRouter(backends)
	if err != nil {
		return nil, err
	}
	dns := dnscache.New(len(backends)*2+8, dnscacheDefaultTTL)
	forwarder := NewForwarder(backends, dns)
	return &Gateway{router: router, forwarder: forwarder}, nil
}

const dnscacheDefaultTTL = 5 * time.Minute

// HandleRequest routes req to a backend and forwards it, translating
// routing and transport failures into a JSON-RPC error response that
// preserves the original request ID rather than returning a bare Go
// error — per spec §4.G, a broken backend is reported to the caller,
// not propagated as a transport fault of the gateway itself.
func (g *Gateway) HandleRequest(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	backendName, ok := g.router.Route(req)
	if !ok {
		return errorResponse(req.ID, notRoutableCode(req.Method), "no backend matches this request")
	}

	resp, err := g.forwarder.Forward(ctx, backendName, req)
	if err != nil {
		slog.Warn("gateway: forward failed", "backend", backendName, "method", req.Method, "error", err)
		return errorResponse(req.ID, transportErrorCode(err), err.Error())
	}
	resp.ID = req.ID
	return resp
}

func errorResponse(id jsonrpc.ID, code int, message string) jsonrpc.Response {
	return jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.ErrorObject{Code: code, Message: message},
	}
}

// JSON-RPC-ish error codes; -32000 and below are the reserved
// "server error" range this gateway uses for its own failure modes.
const (
	codeResourceNotFound  = -32001
	codeToolUnavailable   = -32002
	codeMethodNotRoutable = -32003
	codeTransportError    = -32010
)

func notRoutableCode(method string) int {
	switch method {
	case methodReadResource:
		return codeResourceNotFound
	case methodCallTool:
		return codeToolUnavailable
	default:
		return codeMethodNotRoutable
	}
}

func transportErrorCode(err error) int {
	var re *errs.RuntimeError
	if errors.As(err, &re) {
		switch re.Kind {
		case errs.KindTimeout:
			return codeTransportError - 1
		default:
			return codeTransportError
		}
	}
	return codeTransportError
}

// Close releases every backend pool.
func (g *Gateway) Close() error {
	return g.forwarder.Close()
}
