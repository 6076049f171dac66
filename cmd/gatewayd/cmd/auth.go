package cmd

import (
	"context"
	"encoding/json"

	"github.com/jonwraymond/mcp-runtime/internal/auth"
	"github.com/jonwraymond/mcp-runtime/internal/config"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

// authParams is the subset of a JSON-RPC request's params this gateway
// recognizes as bearer-token/API-key passthrough credentials. The wire
// format has no header concept, so credentials ride alongside the
// method's own params under these well-known keys.
type authParams struct {
	Authorization string `json:"authorization,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
}

const codeUnauthorized = -32020

// buildAuthenticator constructs the Authenticator this gateway enforces
// on every inbound request, per cfg. Returns nil if auth is disabled or
// no credential source is configured, meaning every request is let
// through unchecked.
func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var authenticators []auth.Authenticator

	if cfg.JWT.JWKSURL != "" {
		jwtCfg := auth.JWTConfig{Issuer: cfg.JWT.Issuer}
		if len(cfg.JWT.Audience) > 0 {
			jwtCfg.Audience = cfg.JWT.Audience[0]
		}
		keyProvider := auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: cfg.JWT.JWKSURL})
		authenticators = append(authenticators, auth.NewJWTAuthenticator(jwtCfg, keyProvider))
	}

	if len(cfg.APIKeys) > 0 {
		store := auth.NewMemoryAPIKeyStore()
		for _, rawKey := range cfg.APIKeys {
			hash := auth.HashAPIKey(rawKey, "sha256")
			_ = store.Add(&auth.APIKeyInfo{ID: hash[:min(8, len(hash))], KeyHash: hash})
		}
		authenticators = append(authenticators, auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store))
	}

	if len(authenticators) == 0 {
		return nil, nil
	}
	return auth.NewCompositeAuthenticator(authenticators...), nil
}

// authenticateRequest extracts passthrough credentials from req.Params
// and runs them through authenticator. A nil authenticator always
// succeeds anonymously.
func authenticateRequest(ctx context.Context, authenticator auth.Authenticator, req jsonrpc.Request) (context.Context, *jsonrpc.Response) {
	if authenticator == nil {
		return ctx, nil
	}

	var params authParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}

	authReq := &auth.AuthRequest{
		Headers: map[string][]string{
			"Authorization": {params.Authorization},
			"X-API-Key":     {params.APIKey},
		},
		Method: req.Method,
	}

	result, err := authenticator.Authenticate(ctx, authReq)
	if err != nil {
		resp := errorResponse(req.ID, codeUnauthorized, "authentication failed: "+err.Error())
		return ctx, &resp
	}
	if !result.Authenticated {
		resp := errorResponse(req.ID, codeUnauthorized, "unauthorized")
		return ctx, &resp
	}

	return auth.WithIdentity(ctx, result.Identity), nil
}

func errorResponse(id jsonrpc.ID, code int, message string) jsonrpc.Response {
	return jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.ErrorObject{Code: code, Message: message},
	}
}
