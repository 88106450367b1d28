// Package core holds the transport-agnostic request verification engine:
// scheme policy, access token delegation and DPoP proof binding checks.
// Transport adapters (net/http, gin, echo) feed it a parsed Request and
// surface its AuthError rejections.
package core

import (
	"context"
	"time"
)

// Scheme is a parsed Authorization scheme.
type Scheme string

const (
	SchemeBearer Scheme = "Bearer"
	SchemeDPoP   Scheme = "DPoP"
)

// TokenVerifier validates an access token's signature and standard claims.
// This is the only suspension point in the flow: implementations may fetch
// signing keys over the network, must honor ctx cancellation, and own any
// caching themselves; the core never caches verification results.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (Claims, error)
}

// ProofDecoder decodes a DPoP proof JWT and verifies its signature against
// the embedded public key.
type ProofDecoder interface {
	DecodeProof(ctx context.Context, proof string) (ProofClaims, error)
}

// Logger is the optional logging interface used across the stack.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Request is the transport-agnostic view of one inbound request. URL must be
// the canonical request URL (forwarded-header handling is the transport
// adapter's job).
type Request struct {
	Scheme      Scheme
	AccessToken string
	Proof       string
	Method      string
	URL         string
}

// Core verifies one request at a time. It holds only read-only configuration
// set at construction, so a single instance may serve concurrent requests
// without coordination.
type Core struct {
	verifier      TokenVerifier
	decoder       ProofDecoder
	mode          DPoPMode
	proofMaxAge   time.Duration
	iatLeeway     time.Duration
	expectedNonce string
	logger        Logger
	now           func() time.Time
}

// VerifyRequest runs the full authentication flow for one request and returns
// exactly one of a claims set or an error; the error is always an *AuthError
// (see AsAuthError). The flow:
//
//  1. Scheme policy: missing credential, or a scheme the DPoP mode forbids,
//     rejects immediately.
//  2. The access token is delegated to the TokenVerifier.
//  3. A cnf-bound token presented under the Bearer scheme is always rejected,
//     even with DPoP disabled.
//  4. Under the DPoP scheme the proof is decoded and every binding constraint
//     is checked against the request and token.
func (c *Core) VerifyRequest(ctx context.Context, req Request) (Claims, *DPoPContext, error) {
	switch req.Scheme {
	case SchemeBearer:
		if c.mode == DPoPRequired {
			c.warnf("bearer credential rejected: DPoP is required")
			return nil, nil, unsupportedSchemeError("bearer tokens are not accepted, use DPoP")
		}
	case SchemeDPoP:
		if c.mode == DPoPDisabled {
			c.warnf("DPoP credential rejected: DPoP is disabled")
			return nil, nil, unsupportedSchemeError("DPoP tokens are not accepted, use Bearer")
		}
	case "":
		return nil, nil, missingCredentialError("Authorization header is missing or empty")
	default:
		return nil, nil, unsupportedSchemeError("unsupported authorization scheme")
	}

	if req.AccessToken == "" {
		return nil, nil, missingCredentialError("no access token in Authorization header")
	}

	start := c.clock()
	claims, err := c.verifier.VerifyAccessToken(ctx, req.AccessToken)
	if err != nil {
		c.warnf("access token rejected by verifier: %v", err)
		return nil, nil, AsAuthError(err)
	}
	c.debugf("access token verified in %s", time.Since(start))

	if req.Scheme == SchemeBearer {
		// A DPoP-bound token must never pass as a bearer token, regardless of
		// whether DPoP support is enabled.
		if claims.HasConfirmation() {
			c.warnf("cnf-bound token presented with Bearer scheme")
			return nil, nil, proofMismatchError(MismatchKeyBinding,
				"token is bound to a DPoP key and cannot be used as a bearer token")
		}
		return claims, nil, nil
	}

	if req.Proof == "" {
		return nil, nil, missingCredentialError("DPoP proof header is required for the DPoP scheme")
	}

	proof, err := c.decoder.DecodeProof(ctx, req.Proof)
	if err != nil {
		c.warnf("DPoP proof rejected: %v", err)
		return nil, nil, malformedProofError("DPoP proof could not be decoded", err)
	}

	if jkt := claims.ConfirmationJKT(); jkt != "" && jkt != proof.GetPublicKeyThumbprint() {
		c.warnf("proof key thumbprint does not match token cnf.jkt")
		return nil, nil, proofMismatchError(MismatchKeyBinding,
			"proof public key does not match the token's confirmation claim")
	}

	if authErr := c.validateProofBinding(proof, req.Method, req.URL, req.AccessToken, c.clock()); authErr != nil {
		c.warnf("proof binding mismatch: %s", authErr.Reason)
		return nil, nil, authErr
	}

	c.debugf("DPoP proof validated, jkt=%s", proof.GetPublicKeyThumbprint())

	return claims, &DPoPContext{
		PublicKeyThumbprint: proof.GetPublicKeyThumbprint(),
		IssuedAt:            time.Unix(proof.GetIAT(), 0),
		Proof:               req.Proof,
	}, nil
}

func (c *Core) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Core) debugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

func (c *Core) warnf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warnf(format, args...)
	}
}
