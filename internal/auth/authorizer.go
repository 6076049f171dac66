package auth

import (
	"context"
	"fmt"
	"strings"
)

// Authorizer decides whether an authenticated subject may perform an
// action on a resource. Implementations should be safe for concurrent use.
type Authorizer interface {
	// Authorize returns nil if the request is permitted, or an error
	// (typically *AuthzError) describing why it was denied.
	Authorize(ctx context.Context, req *AuthzRequest) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AuthzRequest describes an authorization decision to be made.
type AuthzRequest struct {
	// Subject is the identity requesting access, as produced by an
	// Authenticator. Nil means an anonymous/unauthenticated subject.
	Subject *Identity

	// Resource is the resource being accessed, e.g. "tool:search_tools".
	Resource string

	// Action is the operation being performed, e.g. "call".
	Action string
}

// ToolName strips a leading "tool:" prefix from Resource, if present.
func (r *AuthzRequest) ToolName() string {
	return strings.TrimPrefix(r.Resource, "tool:")
}

// AuthzError describes a denied authorization decision.
type AuthzError struct {
	Subject  string
	Resource string
	Action   string
	Reason   string
	Cause    error
}

// Error implements the error interface.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q resource=%q action=%q reason=%q",
		e.Subject, e.Resource, e.Action, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *AuthzError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrForbidden, so callers can test for
// authorization failures with errors.Is(err, auth.ErrForbidden) regardless
// of which authorizer produced the error.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// AllowAllAuthorizer permits every request. Useful for development and
// tests, and as the default when authorization is disabled.
type AllowAllAuthorizer struct{}

// Name returns "allow_all".
func (AllowAllAuthorizer) Name() string {
	return "allow_all"
}

// Authorize always returns nil.
func (AllowAllAuthorizer) Authorize(_ context.Context, _ *AuthzRequest) error {
	return nil
}

// DenyAllAuthorizer denies every request. Useful as a fail-closed default.
type DenyAllAuthorizer struct{}

// Name returns "deny_all".
func (DenyAllAuthorizer) Name() string {
	return "deny_all"
}

// Authorize always returns an AuthzError wrapping ErrForbidden.
func (DenyAllAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	subject := ""
	if req.Subject != nil {
		subject = req.Subject.Principal
	}
	return &AuthzError{
		Subject:  subject,
		Resource: req.Resource,
		Action:   req.Action,
		Reason:   "deny_all authorizer denies all requests",
		Cause:    ErrForbidden,
	}
}

// AuthorizerFunc is an adapter to allow use of ordinary functions as Authorizers.
type AuthorizerFunc func(ctx context.Context, req *AuthzRequest) error

// Authorize calls the function.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthzRequest) error {
	return f(ctx, req)
}

// Name returns "func" for function-based authorizers.
func (f AuthorizerFunc) Name() string {
	return "func"
}
