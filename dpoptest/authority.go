package dpoptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Authority is an in-process token issuer for tests: it serves OIDC discovery
// and a JWKS over httptest, and mints tokens and proofs with its own keys.
// It is the one fixture builder shared by every package's tests.
type Authority struct {
	// TokenKey signs access tokens (RS256) and is published in the JWKS.
	TokenKey *KeyPair

	// ProofKey signs DPoP proofs (ES256).
	ProofKey *KeyPair

	// Audience is the default aud minted into tokens.
	Audience string

	server *httptest.Server
	jwks   atomic.Uint64
}

// NewAuthority starts an authority, registered for cleanup with t.
func NewAuthority(t testing.TB) *Authority {
	t.Helper()

	tokenKey, err := NewRS256KeyPair()
	if err != nil {
		t.Fatalf("authority token key: %v", err)
	}
	proofKey, err := NewES256KeyPair()
	if err != nil {
		t.Fatalf("authority proof key: %v", err)
	}

	a := &Authority{
		TokenKey: tokenKey,
		ProofKey: proofKey,
		Audience: "https://api.example.test",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", a.serveDiscovery)
	mux.HandleFunc("/.well-known/jwks.json", a.serveJWKS)
	a.server = httptest.NewServer(mux)
	t.Cleanup(a.server.Close)

	return a
}

// IssuerURL returns the authority's issuer in the form tokens carry it,
// with a trailing slash.
func (a *Authority) IssuerURL() string {
	return a.server.URL + "/"
}

// IssuerURLParsed returns the issuer as a *url.URL for provider wiring.
func (a *Authority) IssuerURLParsed(t testing.TB) *url.URL {
	t.Helper()
	u, err := url.Parse(a.IssuerURL())
	if err != nil {
		t.Fatalf("parse issuer url: %v", err)
	}
	return u
}

// JWKSRequests reports how many times the JWKS endpoint was hit, for cache
// assertions.
func (a *Authority) JWKSRequests() uint64 {
	return a.jwks.Load()
}

// IssueToken mints a bearer access token with sane defaults: the authority's
// issuer and audience, one hour lifetime.
func (a *Authority) IssueToken(t testing.TB, subject string, extra map[string]any) string {
	t.Helper()
	token, err := SignToken(TokenOptions{
		Key:         a.TokenKey,
		Subject:     subject,
		Issuer:      a.IssuerURL(),
		Audience:    a.Audience,
		ExtraClaims: extra,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// IssueBoundToken mints a DPoP-bound token confirmed to the authority's
// proof key.
func (a *Authority) IssueBoundToken(t testing.TB, subject string, extra map[string]any) string {
	t.Helper()
	jkt, err := a.ProofKey.Thumbprint()
	if err != nil {
		t.Fatalf("proof key thumbprint: %v", err)
	}
	token, err := SignToken(TokenOptions{
		Key:                    a.TokenKey,
		Subject:                subject,
		Issuer:                 a.IssuerURL(),
		Audience:               a.Audience,
		ExtraClaims:            extra,
		ConfirmationThumbprint: jkt,
	})
	if err != nil {
		t.Fatalf("issue bound token: %v", err)
	}
	return token
}

// Proof mints a DPoP proof with the authority's proof key.
func (a *Authority) Proof(t testing.TB, method, requestURL, accessToken string) string {
	t.Helper()
	proof, err := SignProof(ProofOptions{
		Key:         a.ProofKey,
		Method:      method,
		URL:         requestURL,
		AccessToken: accessToken,
	})
	if err != nil {
		t.Fatalf("sign proof: %v", err)
	}
	return proof
}

// ProofWithOffset mints a proof whose iat is shifted from now.
func (a *Authority) ProofWithOffset(t testing.TB, method, requestURL, accessToken string, offset time.Duration) string {
	t.Helper()
	proof, err := SignProof(ProofOptions{
		Key:            a.ProofKey,
		Method:         method,
		URL:            requestURL,
		AccessToken:    accessToken,
		IssuedAtOffset: offset,
	})
	if err != nil {
		t.Fatalf("sign proof: %v", err)
	}
	return proof
}

func (a *Authority) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q}`, a.IssuerURL(), a.server.URL+"/.well-known/jwks.json")
}

func (a *Authority) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	a.jwks.Add(1)

	set := jwk.NewSet()
	_ = set.AddKey(a.TokenKey.PublicKey())
	_ = set.AddKey(a.ProofKey.PublicKey())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}
