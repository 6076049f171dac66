package auth

import "context"

type contextKey int

const (
	identityContextKey contextKey = iota
	headersContextKey
)

// WithIdentity returns a context carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the identity stored in ctx, or nil if none.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey).(*Identity)
	return identity
}

// PrincipalFromContext returns the principal of the identity in ctx, or
// "" if ctx carries no identity.
func PrincipalFromContext(ctx context.Context) string {
	identity := IdentityFromContext(ctx)
	if identity == nil {
		return ""
	}
	return identity.Principal
}

// TenantIDFromContext returns the tenant ID of the identity in ctx, or ""
// if ctx carries no identity.
func TenantIDFromContext(ctx context.Context) string {
	identity := IdentityFromContext(ctx)
	if identity == nil {
		return ""
	}
	return identity.TenantID
}

// WithHeaders returns a context carrying the given request headers, so a
// transport-layer handler can populate an AuthRequest downstream of
// where the raw request is available.
func WithHeaders(ctx context.Context, headers map[string][]string) context.Context {
	return context.WithValue(ctx, headersContextKey, headers)
}

// HeadersFromContext returns the headers stored in ctx, or nil if none.
func HeadersFromContext(ctx context.Context) map[string][]string {
	headers, _ := ctx.Value(headersContextKey).(map[string][]string)
	return headers
}

// GetHeader returns the first value of the named header stored in ctx,
// or "" if ctx carries no headers or the header is absent.
func GetHeader(ctx context.Context, key string) string {
	headers := HeadersFromContext(ctx)
	if headers == nil {
		return ""
	}
	values := headers[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
