package auth

import "context"

// CompositeAuthenticator chains multiple authenticators, trying each in
// order and falling back to the next on failure.
type CompositeAuthenticator struct {
	authenticators []Authenticator

	// StopOnFirst stops trying further authenticators once one succeeds.
	// Defaults to true; set false only to force every authenticator to run
	// (useful for authenticators with side effects, e.g. audit logging).
	StopOnFirst bool
}

// NewCompositeAuthenticator returns a composite that tries each
// authenticator in order, skipping ones that don't support the request.
func NewCompositeAuthenticator(authenticators ...Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{
		authenticators: authenticators,
		StopOnFirst:    true,
	}
}

// Name returns "composite".
func (c *CompositeAuthenticator) Name() string {
	return "composite"
}

// Supports returns true if any wrapped authenticator supports the request.
func (c *CompositeAuthenticator) Supports(ctx context.Context, req *AuthRequest) bool {
	for _, a := range c.authenticators {
		if a.Supports(ctx, req) {
			return true
		}
	}
	return false
}

// Authenticate tries each supporting authenticator in order. The first
// success wins; an unexpected error from any authenticator aborts and
// propagates immediately. If every authenticator fails, the last failure
// result is returned. With no authenticators configured, authentication
// fails with ErrMissingCredentials.
func (c *CompositeAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	var first, last *AuthResult

	for _, a := range c.authenticators {
		if !a.Supports(ctx, req) {
			continue
		}

		result, err := a.Authenticate(ctx, req)
		if err != nil {
			return nil, err
		}
		if result.Authenticated {
			if c.StopOnFirst {
				return result, nil
			}
			if first == nil {
				first = result
			}
			continue
		}
		last = result
	}

	if first != nil {
		return first, nil
	}
	if last != nil {
		return last, nil
	}
	return AuthFailure(ErrMissingCredentials, ""), nil
}
