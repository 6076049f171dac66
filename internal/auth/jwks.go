package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JWKSConfig configures a JWKS (JSON Web Key Set) backed key provider.
type JWKSConfig struct {
	// URL is the JWKS endpoint to fetch keys from.
	URL string

	// CacheTTL controls how long a fetched key set is reused before
	// being refreshed. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient is used to fetch the key set. Default: a client with
	// a 10 second timeout.
	HTTPClient *http.Client
}

type jwksKey struct {
	kid string
	pub *rsa.PublicKey
}

// JWKSKeyProvider resolves JWT signing keys from a remote JWKS endpoint,
// caching the fetched key set for JWKSConfig.CacheTTL.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu        sync.Mutex
	keys      []jwksKey
	fetchedAt time.Time
}

// NewJWKSKeyProvider creates a key provider backed by a JWKS endpoint.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSKeyProvider{config: config}
}

// GetKey returns the RSA public key matching kid, refreshing the cached
// key set if it has expired. If kid is empty, the first key in the set
// is returned. If a refresh fails but a previously fetched key set is
// still held, the stale set is used rather than failing the request.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, kid string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.fetchedAt) > p.config.CacheTTL || p.keys == nil {
		keys, err := p.fetchKeys(ctx)
		if err != nil {
			if p.keys == nil {
				return nil, err
			}
		} else {
			p.keys = keys
			p.fetchedAt = time.Now()
		}
	}

	return p.findKey(kid)
}

func (p *JWKSKeyProvider) findKey(kid string) (any, error) {
	if kid == "" && len(p.keys) > 0 {
		return p.keys[0].pub, nil
	}
	for _, k := range p.keys {
		if k.kid == kid {
			return k.pub, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (p *JWKSKeyProvider) fetchKeys(ctx context.Context) ([]jwksKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode jwks response: %w", err)
	}

	keys := make([]jwksKey, 0, len(body.Keys))
	for _, jwk := range body.Keys {
		pub, err := parseRSAPublicKeyJWK(jwk)
		if err != nil {
			continue
		}
		kid, _ := jwk["kid"].(string)
		keys = append(keys, jwksKey{kid: kid, pub: pub})
	}

	return keys, nil
}

func parseRSAPublicKeyJWK(jwk map[string]any) (*rsa.PublicKey, error) {
	nStr, ok := jwk["n"].(string)
	if !ok || nStr == "" {
		return nil, fmt.Errorf("jwk missing n parameter")
	}
	eStr, ok := jwk["e"].(string)
	if !ok || eStr == "" {
		return nil, fmt.Errorf("jwk missing e parameter")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("decode n parameter: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("decode e parameter: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
