package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Wire-level error codes from the OAuth2/DPoP vocabulary. These are the only
// codes that ever appear in a response body.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeInvalidToken      = "invalid_token"
	CodeInvalidDPoPProof  = "invalid_dpop_proof"
	CodeInsufficientScope = "insufficient_scope"
)

// MismatchReason identifies which DPoP binding check failed. The wire code
// stays the coarse invalid_dpop_proof for compatibility; the reason is kept
// on the AuthError for logging and metrics.
type MismatchReason string

const (
	MismatchMethod     MismatchReason = "method"
	MismatchURL        MismatchReason = "url"
	MismatchTokenHash  MismatchReason = "ath"
	MismatchIATWindow  MismatchReason = "iat-window"
	MismatchNonce      MismatchReason = "nonce"
	MismatchKeyBinding MismatchReason = "key-binding"
)

// Sentinel errors for the rejection taxonomy. AuthError values compare equal
// to exactly one of these via errors.Is.
var (
	// ErrMissingCredential is returned when no Authorization header is present.
	ErrMissingCredential = errors.New("credential missing")

	// ErrMalformedHeader is returned when an auth-related header is present
	// but cannot be parsed.
	ErrMalformedHeader = errors.New("malformed auth header")

	// ErrUnsupportedScheme is returned when the Authorization scheme violates
	// the configured DPoP mode.
	ErrUnsupportedScheme = errors.New("unsupported authorization scheme")

	// ErrMalformedProof is returned when a DPoP proof JWT cannot be decoded
	// or its signature cannot be verified.
	ErrMalformedProof = errors.New("malformed DPoP proof")

	// ErrProofBindingMismatch is returned when a decoded proof fails one of
	// the binding checks against the request or access token.
	ErrProofBindingMismatch = errors.New("DPoP proof binding mismatch")

	// ErrUpstreamVerification is returned when the token verifier rejects the
	// access token (signature, issuer, audience, expiry).
	ErrUpstreamVerification = errors.New("access token verification failed")

	// ErrInsufficientScope is returned when the token is valid but lacks a
	// required scope.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrUnexpectedFailure is the catch-all for failures outside the taxonomy.
	ErrUnexpectedFailure = errors.New("unexpected authentication failure")
)

// AuthError is the terminal rejection for a request: a concrete HTTP status,
// a machine-readable OAuth2/DPoP error code, a human-readable description and
// any challenge headers (e.g. WWW-Authenticate) the response must carry.
// Descriptions never contain key material or internal detail.
type AuthError struct {
	Status      int
	Code        string
	Description string
	Headers     map[string]string

	// Reason is set only for proof binding mismatches.
	Reason MismatchReason

	sentinel error
	cause    error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is reports equality against the sentinel for this rejection kind.
func (e *AuthError) Is(target error) bool {
	return target == e.sentinel
}

// Unwrap exposes the underlying cause, if any.
func (e *AuthError) Unwrap() error {
	return e.cause
}

// WithHeader returns the error with a challenge header attached.
func (e *AuthError) WithHeader(key, value string) *AuthError {
	if e.Headers == nil {
		e.Headers = make(map[string]string, 1)
	}
	e.Headers[key] = value
	return e
}

func missingCredentialError(description string) *AuthError {
	return &AuthError{
		Status:      http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: description,
		sentinel:    ErrMissingCredential,
	}
}

func malformedHeaderError(description string) *AuthError {
	return &AuthError{
		Status:      http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: description,
		sentinel:    ErrMalformedHeader,
	}
}

// NewMalformedHeaderError builds the 400 rejection for an auth header the
// transport layer could not parse.
func NewMalformedHeaderError(description string, cause error) *AuthError {
	e := malformedHeaderError(description)
	e.cause = cause
	return e
}

func unsupportedSchemeError(description string) *AuthError {
	return &AuthError{
		Status:      http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: description,
		sentinel:    ErrUnsupportedScheme,
	}
}

func malformedProofError(description string, cause error) *AuthError {
	return &AuthError{
		Status:      http.StatusBadRequest,
		Code:        CodeInvalidDPoPProof,
		Description: description,
		sentinel:    ErrMalformedProof,
		cause:       cause,
	}
}

func proofMismatchError(reason MismatchReason, description string) *AuthError {
	e := &AuthError{
		Status:      http.StatusUnauthorized,
		Code:        CodeInvalidDPoPProof,
		Description: description,
		Reason:      reason,
		sentinel:    ErrProofBindingMismatch,
	}
	return e.WithHeader("WWW-Authenticate", `DPoP algs="ES256 ES384 ES512", error="invalid_dpop_proof"`)
}

// NewUpstreamError builds the rejection for a token the external verifier
// refused. Verifier implementations use this to carry their status, code and
// challenge headers through the core unchanged.
func NewUpstreamError(status int, code, description string, cause error) *AuthError {
	return &AuthError{
		Status:      status,
		Code:        code,
		Description: description,
		sentinel:    ErrUpstreamVerification,
		cause:       cause,
	}
}

// NewInsufficientScopeError builds the 403 rejection for a scope check
// failure.
func NewInsufficientScopeError(description string) *AuthError {
	return &AuthError{
		Status:      http.StatusForbidden,
		Code:        CodeInsufficientScope,
		Description: description,
		sentinel:    ErrInsufficientScope,
	}
}

func unexpectedError(cause error) *AuthError {
	return &AuthError{
		Status:      http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: "request could not be authenticated",
		sentinel:    ErrUnexpectedFailure,
		cause:       cause,
	}
}

// AsAuthError extracts the AuthError from err, wrapping anything outside the
// taxonomy as an unexpected failure so every rejection surfaces as one
// status/code/description triple.
func AsAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return unexpectedError(err)
}
