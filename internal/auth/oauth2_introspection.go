package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuth2Config configures the OAuth2 token introspection authenticator
// (RFC 7662).
type OAuth2Config struct {
	// IntrospectionEndpoint is the introspection endpoint URL.
	IntrospectionEndpoint string

	// ClientID is the OAuth2 client ID used to authenticate to the
	// introspection endpoint.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// ClientAuthMethod selects how the client authenticates to the
	// introspection endpoint: "client_secret_basic" (default) or
	// "client_secret_post".
	ClientAuthMethod string

	// PrincipalClaim is the introspection response field used as the
	// identity principal. Default: "sub".
	PrincipalClaim string

	// TenantClaim is the field containing the tenant ID. If empty, no
	// tenant is extracted.
	TenantClaim string

	// RolesClaim is the field containing a role list.
	RolesClaim string

	// ScopesClaim is the field containing a space-delimited scope
	// string; each scope becomes a permission on the identity.
	ScopesClaim string

	// Timeout bounds each introspection request. Default: 10s.
	Timeout time.Duration

	// CacheTTL caches positive introspection responses per token for
	// this duration. Zero disables caching. Negative responses are
	// never cached.
	CacheTTL time.Duration
}

type oauth2CacheEntry struct {
	result    *AuthResult
	expiresAt time.Time
}

// OAuth2IntrospectionAuthenticator validates bearer tokens by calling an
// RFC 7662 token introspection endpoint.
type OAuth2IntrospectionAuthenticator struct {
	config     OAuth2Config
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]oauth2CacheEntry
}

// NewOAuth2IntrospectionAuthenticator creates a new introspection-based
// authenticator.
func NewOAuth2IntrospectionAuthenticator(config OAuth2Config) *OAuth2IntrospectionAuthenticator {
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.PrincipalClaim == "" {
		config.PrincipalClaim = "sub"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &OAuth2IntrospectionAuthenticator{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      make(map[string]oauth2CacheEntry),
	}
}

// Name returns "oauth2_introspection".
func (a *OAuth2IntrospectionAuthenticator) Name() string {
	return "oauth2_introspection"
}

// Supports returns true if the request carries a bearer token.
func (a *OAuth2IntrospectionAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	_, ok := extractBearerToken(req.GetHeader("Authorization"))
	return ok
}

// Authenticate introspects the bearer token and builds an identity from
// the response claims.
func (a *OAuth2IntrospectionAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	token, ok := extractBearerToken(req.GetHeader("Authorization"))
	if !ok {
		return AuthFailure(ErrMissingCredentials, "Bearer"), nil
	}

	if cached, ok := a.cachedResult(token); ok {
		return cached, nil
	}

	claims, err := a.introspect(ctx, token)
	if err != nil {
		return nil, err
	}

	active, _ := claims["active"].(bool)
	if !active {
		return AuthFailure(ErrTokenInactive, "Bearer"), nil
	}

	result := AuthSuccess(a.buildIdentity(claims))
	a.cacheResult(token, result)
	return result, nil
}

func (a *OAuth2IntrospectionAuthenticator) cachedResult(token string) (*AuthResult, bool) {
	if a.config.CacheTTL <= 0 {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

func (a *OAuth2IntrospectionAuthenticator) cacheResult(token string, result *AuthResult) {
	if a.config.CacheTTL <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[token] = oauth2CacheEntry{
		result:    result,
		expiresAt: time.Now().Add(a.config.CacheTTL),
	}
}

func (a *OAuth2IntrospectionAuthenticator) introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{"token": {token}}
	if a.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", a.config.ClientID)
		form.Set("client_secret", a.config.ClientSecret)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrIntrospectionFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if a.config.ClientAuthMethod != "client_secret_post" {
		httpReq.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntrospectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: introspection endpoint returned status %d", ErrIntrospectionFailed, resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrIntrospectionFailed, err)
	}
	return claims, nil
}

func (a *OAuth2IntrospectionAuthenticator) buildIdentity(claims map[string]any) *Identity {
	identity := &Identity{
		Method: AuthMethodOAuth2,
		Claims: claims,
	}

	if sub, ok := claims[a.config.PrincipalClaim].(string); ok {
		identity.Principal = sub
	}

	if a.config.TenantClaim != "" {
		if tenant, ok := claims[a.config.TenantClaim].(string); ok {
			identity.TenantID = tenant
		}
	}

	if a.config.RolesClaim != "" {
		identity.Roles = stringsFromClaim(claims[a.config.RolesClaim])
	}

	if a.config.ScopesClaim != "" {
		if scopeStr, ok := claims[a.config.ScopesClaim].(string); ok {
			identity.Permissions = strings.Fields(scopeStr)
		}
	}

	if exp, ok := claims["exp"].(float64); ok {
		identity.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if iat, ok := claims["iat"].(float64); ok {
		identity.IssuedAt = time.Unix(int64(iat), 0)
	}

	return identity
}

// stringsFromClaim coerces a JSON-decoded claim value into a string
// slice. Introspection responses encode array claims as []any.
func stringsFromClaim(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extractBearerToken extracts the token from a "Bearer <token>"
// Authorization header value, case-insensitively matching the scheme.
func extractBearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
