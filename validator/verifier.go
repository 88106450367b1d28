// Package validator implements the JOSE side of request authentication: a
// jwx-backed access token verifier, the DPoP proof decoder and the EC key
// thumbprint. It has no knowledge of HTTP requests beyond the raw credential
// strings it is handed.
package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/proofbound/go-dpop-middleware/core"
)

// KeyFunc supplies the key set used to verify access token signatures. It is
// called once per request; caching belongs to the implementation (see
// CachingProvider), never to the callers.
type KeyFunc func(ctx context.Context) (jwk.Set, error)

// Verifier validates access tokens against a JWKS and expected claims. It
// implements both core.TokenVerifier and core.ProofDecoder.
type Verifier struct {
	keyFunc    KeyFunc
	issuer     string
	audience   []string
	algorithms map[jwa.SignatureAlgorithm]bool
	clockSkew  time.Duration
	now        func() time.Time
}

var defaultTokenAlgorithms = map[jwa.SignatureAlgorithm]bool{
	jwa.RS256: true,
	jwa.RS384: true,
	jwa.RS512: true,
	jwa.PS256: true,
	jwa.ES256: true,
	jwa.ES384: true,
	jwa.ES512: true,
}

// New builds a Verifier. keyFunc, issuer and at least one audience are
// required.
func New(keyFunc KeyFunc, issuer string, audience []string, opts ...Option) (*Verifier, error) {
	if keyFunc == nil {
		return nil, errors.New("keyFunc is required but was nil")
	}
	if issuer == "" {
		return nil, errors.New("issuer is required but was empty")
	}
	if len(audience) == 0 {
		return nil, errors.New("audience is required but was empty")
	}

	v := &Verifier{
		keyFunc:    keyFunc,
		issuer:     issuer,
		audience:   audience,
		algorithms: defaultTokenAlgorithms,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// VerifyAccessToken verifies the token's signature against the key set and
// validates issuer, audience and the time-based claims. On success it returns
// the full decoded claim set; on failure a core.AuthError carrying the wire
// status, code and WWW-Authenticate challenge.
func (v *Verifier) VerifyAccessToken(ctx context.Context, accessToken string) (core.Claims, error) {
	if err := checkCompactFormat(accessToken); err != nil {
		return nil, invalidTokenError("token is malformed", err)
	}

	alg, err := tokenAlgorithm(accessToken)
	if err != nil {
		return nil, invalidTokenError("token is malformed", err)
	}
	if !v.algorithms[alg] {
		return nil, invalidTokenError(fmt.Sprintf("token algorithm %q is not allowed", alg), nil)
	}

	keySet, err := v.keyFunc(ctx)
	if err != nil {
		return nil, invalidTokenError("signing keys are unavailable", err)
	}

	token, err := jwt.Parse([]byte(accessToken),
		jwt.WithKeySet(keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, invalidTokenError("token signature could not be verified", err)
	}

	if err := v.validateClaims(token); err != nil {
		return nil, err
	}

	return claimsFromToken(token), nil
}

// validateClaims checks issuer, audience and the temporal claims with the
// configured clock skew.
func (v *Verifier) validateClaims(token jwt.Token) error {
	now := v.clock()

	if token.Issuer() != v.issuer {
		return invalidTokenError("token issuer is not trusted", nil)
	}

	found := false
	for _, want := range v.audience {
		for _, have := range token.Audience() {
			if have == want {
				found = true
				break
			}
		}
	}
	if !found {
		return invalidTokenError("token audience does not match", nil)
	}

	if exp := token.Expiration(); !exp.IsZero() && now.Add(-v.clockSkew).After(exp) {
		return invalidTokenError("token is expired", nil)
	}
	if nbf := token.NotBefore(); !nbf.IsZero() && now.Add(v.clockSkew).Before(nbf) {
		return invalidTokenError("token is not valid yet", nil)
	}
	if iat := token.IssuedAt(); !iat.IsZero() && now.Add(v.clockSkew).Before(iat) {
		return invalidTokenError("token was issued in the future", nil)
	}

	return nil
}

func (v *Verifier) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// claimsFromToken flattens the registered and private claims into the claim
// mapping handed to the application.
func claimsFromToken(token jwt.Token) core.Claims {
	claims := core.Claims{}
	for name, value := range token.PrivateClaims() {
		claims[name] = value
	}
	if s := token.Subject(); s != "" {
		claims["sub"] = s
	}
	if s := token.Issuer(); s != "" {
		claims["iss"] = s
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims["aud"] = aud
	}
	if s := token.JwtID(); s != "" {
		claims["jti"] = s
	}
	if t := token.IssuedAt(); !t.IsZero() {
		claims["iat"] = t.Unix()
	}
	if t := token.Expiration(); !t.IsZero() {
		claims["exp"] = t.Unix()
	}
	if t := token.NotBefore(); !t.IsZero() {
		claims["nbf"] = t.Unix()
	}
	// jwx decodes cnf as map[string]interface{}; nothing further to do, the
	// claims accessor handles that shape.
	return claims
}

// tokenAlgorithm reads the alg from the protected header without verifying.
func tokenAlgorithm(accessToken string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(accessToken)
	if err != nil {
		return "", fmt.Errorf("could not parse token: %w", err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", errors.New("token has no signature")
	}
	return sigs[0].ProtectedHeaders().Algorithm(), nil
}

const (
	// JWS compact form has 2 dots, JWE up to 4; anything past 5 is a
	// memory-exhaustion probe, not a credential.
	maxCompactDots = 5

	// A real token is a few KB at most.
	maxCompactSize = 1 << 20
)

// checkCompactFormat rejects obviously hostile inputs before they reach the
// JOSE parser.
func checkCompactFormat(s string) error {
	if s == "" {
		return errors.New("credential is empty")
	}
	if len(s) > maxCompactSize {
		return errors.New("credential exceeds the maximum size")
	}
	if strings.Count(s, ".") > maxCompactDots {
		return errors.New("credential contains too many segments")
	}
	return nil
}

func invalidTokenError(description string, cause error) *core.AuthError {
	e := core.NewUpstreamError(http.StatusUnauthorized, core.CodeInvalidToken, description, cause)
	return e.WithHeader("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+description+`"`)
}
