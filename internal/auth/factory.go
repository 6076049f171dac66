package auth

import (
	"fmt"
	"sort"
	"sync"
)

// AuthenticatorFactory builds an Authenticator from a configuration map,
// as loaded from a config file section.
type AuthenticatorFactory func(cfg map[string]any) (Authenticator, error)

// AuthorizerFactory builds an Authorizer from a configuration map.
type AuthorizerFactory func(cfg map[string]any) (Authorizer, error)

// Registry holds named factories for authenticators and authorizers,
// letting a deployment construct its auth stack by name from config
// rather than wiring concrete types at compile time.
type Registry struct {
	mu             sync.RWMutex
	authenticators map[string]AuthenticatorFactory
	authorizers    map[string]AuthorizerFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		authenticators: make(map[string]AuthenticatorFactory),
		authorizers:    make(map[string]AuthorizerFactory),
	}
}

// RegisterAuthenticator registers a factory under name. Returns an error
// if name is already registered.
func (r *Registry) RegisterAuthenticator(name string, factory AuthenticatorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.authenticators[name]; exists {
		return fmt.Errorf("authenticator %q already registered", name)
	}
	r.authenticators[name] = factory
	return nil
}

// CreateAuthenticator builds the authenticator registered under name.
// Returns an error if name is not registered or the factory fails.
func (r *Registry) CreateAuthenticator(name string, cfg map[string]any) (Authenticator, error) {
	r.mu.RLock()
	factory, ok := r.authenticators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no authenticator registered for %q", name)
	}
	return factory(cfg)
}

// ListAuthenticators returns the names of all registered authenticators.
func (r *Registry) ListAuthenticators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.authenticators))
	for name := range r.authenticators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAuthorizer registers a factory under name. Returns an error if
// name is already registered.
func (r *Registry) RegisterAuthorizer(name string, factory AuthorizerFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.authorizers[name]; exists {
		return fmt.Errorf("authorizer %q already registered", name)
	}
	r.authorizers[name] = factory
	return nil
}

// CreateAuthorizer builds the authorizer registered under name. Returns
// an error if name is not registered or the factory fails.
func (r *Registry) CreateAuthorizer(name string, cfg map[string]any) (Authorizer, error) {
	r.mu.RLock()
	factory, ok := r.authorizers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no authorizer registered for %q", name)
	}
	return factory(cfg)
}

// ListAuthorizers returns the names of all registered authorizers.
func (r *Registry) ListAuthorizers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.authorizers))
	for name := range r.authorizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is pre-populated with the built-in authenticator and
// authorizer implementations, keyed by the name a config file would use
// to select them.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	reg := NewRegistry()

	_ = reg.RegisterAuthenticator("jwt", func(cfg map[string]any) (Authenticator, error) {
		secret, _ := cfg["secret"].(string)
		if secret == "" {
			return nil, fmt.Errorf("jwt authenticator: %q config key is required", "secret")
		}
		jwtCfg := JWTConfig{}
		if issuer, ok := cfg["issuer"].(string); ok {
			jwtCfg.Issuer = issuer
		}
		if audience, ok := cfg["audience"].(string); ok {
			jwtCfg.Audience = audience
		}
		return NewJWTAuthenticator(jwtCfg, NewStaticKeyProvider([]byte(secret))), nil
	})

	_ = reg.RegisterAuthenticator("api_key", func(cfg map[string]any) (Authenticator, error) {
		apiCfg := APIKeyConfig{}
		if header, ok := cfg["header_name"].(string); ok {
			apiCfg.HeaderName = header
		}
		return NewAPIKeyAuthenticator(apiCfg, NewMemoryAPIKeyStore()), nil
	})

	_ = reg.RegisterAuthorizer("simple_rbac", func(cfg map[string]any) (Authorizer, error) {
		rbacCfg := RBACConfig{}
		if defaultRole, ok := cfg["default_role"].(string); ok {
			rbacCfg.DefaultRole = defaultRole
		}
		return NewSimpleRBACAuthorizer(rbacCfg), nil
	})

	_ = reg.RegisterAuthorizer("allow_all", func(_ map[string]any) (Authorizer, error) {
		return AllowAllAuthorizer{}, nil
	})

	_ = reg.RegisterAuthorizer("deny_all", func(_ map[string]any) (Authorizer, error) {
		return DenyAllAuthorizer{}, nil
	})

	return reg
}
