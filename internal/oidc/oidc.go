// Package oidc fetches the well-known OIDC discovery document for an issuer.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// WellKnownEndpoints holds the discovery metadata we need.
type WellKnownEndpoints struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// GetWellKnownEndpoints fetches .well-known/openid-configuration below the
// issuer URL and verifies the advertised issuer matches the one asked for.
func GetWellKnownEndpoints(ctx context.Context, client *http.Client, issuerURL url.URL) (*WellKnownEndpoints, error) {
	expectedIssuer := issuerURL.String()
	issuerURL.Path = path.Join(issuerURL.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not build discovery request: %w", err)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch discovery document from %s: %w", issuerURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request to %s returned status %d", issuerURL.String(), resp.StatusCode)
	}

	var endpoints WellKnownEndpoints
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, fmt.Errorf("could not decode discovery document: %w", err)
	}

	if endpoints.Issuer != "" && !sameIssuer(endpoints.Issuer, expectedIssuer) {
		return nil, fmt.Errorf("discovery document issuer %q does not match %q", endpoints.Issuer, expectedIssuer)
	}
	if endpoints.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document from %s has no jwks_uri", issuerURL.String())
	}

	return &endpoints, nil
}

// sameIssuer tolerates a single trailing slash difference, which is common
// between configured and advertised issuer values.
func sameIssuer(a, b string) bool {
	if a == b {
		return true
	}
	return trimSlash(a) == trimSlash(b)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
