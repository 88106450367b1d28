package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/proofbound/go-dpop-middleware/internal/oidc"
)

// Provider resolves the issuer's JWKS: OIDC discovery to find the jwks_uri
// (unless a custom one is set), then a fetch of the key set. Its KeyFunc
// satisfies the Verifier's KeyFunc signature. Most deployments want
// CachingProvider instead, which avoids refetching on every request.
type Provider struct {
	issuerURL     *url.URL
	customJWKSURI *url.URL
	client        *http.Client
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider) error

// NewProvider builds a Provider for the given issuer.
func NewProvider(issuerURL *url.URL, opts ...ProviderOption) (*Provider, error) {
	if issuerURL == nil {
		return nil, errors.New("issuer URL is required")
	}
	p := &Provider{
		issuerURL: issuerURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithCustomJWKSURI skips OIDC discovery and fetches keys from the given URI.
func WithCustomJWKSURI(jwksURI *url.URL) ProviderOption {
	return func(p *Provider) error {
		if jwksURI == nil {
			return errors.New("jwks URI cannot be nil")
		}
		p.customJWKSURI = jwksURI
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for discovery and key fetches.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		p.client = client
		return nil
	}
}

// KeyFunc fetches the issuer's key set.
func (p *Provider) KeyFunc(ctx context.Context) (jwk.Set, error) {
	jwksURI := p.customJWKSURI
	if jwksURI == nil {
		endpoints, err := oidc.GetWellKnownEndpoints(ctx, p.client, *p.issuerURL)
		if err != nil {
			return nil, err
		}
		jwksURI, err = url.Parse(endpoints.JWKSURI)
		if err != nil {
			return nil, fmt.Errorf("could not parse jwks_uri from discovery document: %w", err)
		}
	}

	set, err := jwk.Fetch(ctx, jwksURI.String(), jwk.WithHTTPClient(p.client))
	if err != nil {
		return nil, fmt.Errorf("could not fetch JWKS: %w", err)
	}
	return set, nil
}

// CachingProvider wraps a Provider with a TTL cache so concurrent requests
// share one fetched key set. A fetch failure while a previously fetched set
// is still held serves the stale set rather than failing the request.
type CachingProvider struct {
	*Provider
	ttl time.Duration

	mu        sync.RWMutex
	cached    jwk.Set
	expiresAt time.Time
}

// NewCachingProvider builds a CachingProvider. A non-positive ttl falls back
// to 5 minutes.
func NewCachingProvider(issuerURL *url.URL, ttl time.Duration, opts ...ProviderOption) (*CachingProvider, error) {
	p, err := NewProvider(issuerURL, opts...)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingProvider{Provider: p, ttl: ttl}, nil
}

// KeyFunc returns the cached key set, refreshing it when expired.
func (c *CachingProvider) KeyFunc(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.cached != nil && time.Now().Before(c.expiresAt) {
		set := c.cached
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if c.cached != nil && time.Now().Before(c.expiresAt) {
		return c.cached, nil
	}

	set, err := c.Provider.KeyFunc(ctx)
	if err != nil {
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = set
	c.expiresAt = time.Now().Add(c.ttl)
	return set, nil
}
