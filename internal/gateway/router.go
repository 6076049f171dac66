package gateway

import (
	"strings"

	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

const (
	methodReadResource = "read_resource"
	methodCallTool     = "call_tool"
)

// Router matches an incoming request to the backend that should serve
// it, by method-specific rules: URI-prefix-then-regex for
// read_resource, exact tool name for call_tool. Any other method
// routes nowhere.
type Router struct {
	backends []compiledBackend
}

// NewRouter builds a Router from a list of backend configs, in the
// order given — for read_resource, the first prefix match wins, so
// backend order is significant when prefixes overlap.
func NewRouter(backends []BackendConfig) (*Router, error) {
	r := &Router{}
	for _, cfg := range backends {
		cb, err := compileBackend(cfg)
		if err != nil {
			return nil, err
		}
		r.backends = append(r.backends, cb)
	}
	return r, nil
}

// Route returns the name of the backend that should handle req, or
// ("", false) if no backend matches (including for methods the router
// doesn't know how to route at all).
func (r *Router) Route(req jsonrpc.Request) (string, bool) {
	switch req.Method {
	case methodReadResource:
		uri, ok := jsonrpc.ParamString(req.Params, "uri")
		if !ok {
			return "", false
		}
		return r.routeResource(uri)
	case methodCallTool:
		name, ok := jsonrpc.ParamString(req.Params, "name")
		if !ok {
			return "", false
		}
		return r.routeTool(name)
	default:
		return "", false
	}
}

func (r *Router) routeResource(uri string) (string, bool) {
	for _, b := range r.backends {
		for _, prefix := range b.cfg.ResourcePrefixes {
			if strings.HasPrefix(uri, prefix) {
				return b.cfg.Name, true
			}
		}
	}
	for _, b := range r.backends {
		for _, re := range b.regexes {
			if re.MatchString(uri) {
				return b.cfg.Name, true
			}
		}
	}
	return "", false
}

func (r *Router) routeTool(name string) (string, bool) {
	for _, b := range r.backends {
		for _, tool := range b.cfg.ToolNames {
			if tool == name {
				return b.cfg.Name, true
			}
		}
	}
	return "", false
}

// Backend returns the configuration for name, if registered.
func (r *Router) Backend(name string) (BackendConfig, bool) {
	for _, b := range r.backends {
		if b.cfg.Name == name {
			return b.cfg, true
		}
	}
	return BackendConfig{}, false
}
