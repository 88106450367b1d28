package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DPoPMode is the operational mode for DPoP validation.
type DPoPMode int

const (
	// DPoPAllowed accepts both Bearer and DPoP schemes (default).
	DPoPAllowed DPoPMode = iota

	// DPoPRequired rejects Bearer tokens; only the DPoP scheme is accepted.
	DPoPRequired

	// DPoPDisabled rejects the DPoP scheme; only Bearer tokens are accepted.
	DPoPDisabled
)

func (m DPoPMode) String() string {
	switch m {
	case DPoPAllowed:
		return "DPoPAllowed"
	case DPoPRequired:
		return "DPoPRequired"
	case DPoPDisabled:
		return "DPoPDisabled"
	default:
		return fmt.Sprintf("DPoPMode(%d)", m)
	}
}

// ProofClaims is the decoded, signature-verified content of a DPoP proof.
// Implementations decode the proof JWT, verify its signature with the
// embedded public key, and compute the key's thumbprint.
type ProofClaims interface {
	// GetJTI returns the proof's unique identifier.
	GetJTI() string

	// GetHTM returns the bound HTTP method.
	GetHTM() string

	// GetHTU returns the bound request URL.
	GetHTU() string

	// GetIAT returns the issued-at epoch seconds.
	GetIAT() int64

	// GetATH returns the access token hash claim, or empty when absent.
	GetATH() string

	// GetNonce returns the server nonce claim, or empty when absent.
	GetNonce() string

	// GetPublicKeyThumbprint returns the thumbprint of the embedded key.
	GetPublicKeyThumbprint() string
}

// DPoPContext carries the validated proof details for the application, stored
// in the request context next to the claims.
type DPoPContext struct {
	// PublicKeyThumbprint is the jkt of the proof's key. Useful for session
	// binding, audit logging and rate limiting.
	PublicKeyThumbprint string

	// IssuedAt is the proof's iat.
	IssuedAt time.Time

	// Proof is the raw proof JWT, kept for audit purposes.
	Proof string
}

// validateProofBinding runs every binding constraint between the proof, the
// request and the access token. Each check reports its own mismatch reason;
// the first failure wins.
func (c *Core) validateProofBinding(proof ProofClaims, method, canonicalURL, accessToken string, now time.Time) *AuthError {
	if proof.GetHTM() != strings.ToUpper(method) {
		return proofMismatchError(MismatchMethod,
			fmt.Sprintf("proof htm %q does not match request method %q", proof.GetHTM(), method))
	}

	// Exact string comparison, never parsed-URL equivalence: trailing slashes,
	// query order and host case all count as mismatches.
	if proof.GetHTU() != canonicalURL {
		return proofMismatchError(MismatchURL,
			fmt.Sprintf("proof htu %q does not match request URL %q", proof.GetHTU(), canonicalURL))
	}

	if accessToken != "" {
		want := hashAccessToken(accessToken)
		if subtle.ConstantTimeCompare([]byte(proof.GetATH()), []byte(want)) != 1 {
			return proofMismatchError(MismatchTokenHash,
				"proof ath does not match the presented access token")
		}
	}

	iat := proof.GetIAT()
	if iat > now.Unix()+int64(c.iatLeeway.Seconds()) {
		return proofMismatchError(MismatchIATWindow,
			fmt.Sprintf("proof iat %d is too far in the future", iat))
	}
	if iat < now.Unix()-int64(c.proofMaxAge.Seconds()) {
		return proofMismatchError(MismatchIATWindow,
			fmt.Sprintf("proof is too old (iat %d)", iat))
	}

	if c.expectedNonce != "" && proof.GetNonce() != c.expectedNonce {
		return proofMismatchError(MismatchNonce, "proof nonce does not match the expected value")
	}

	return nil
}

// hashAccessToken computes the ath value for a token: unpadded base64url of
// its SHA-256 digest.
func hashAccessToken(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
