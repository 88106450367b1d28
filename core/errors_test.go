package core

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthError(t *testing.T) {
	t.Run("message includes the mismatch reason when set", func(t *testing.T) {
		err := proofMismatchError(MismatchURL, "proof htu does not match")
		assert.Contains(t, err.Error(), "invalid_dpop_proof")
		assert.Contains(t, err.Error(), "url")

		plain := missingCredentialError("no credential")
		assert.NotContains(t, plain.Error(), "()")
	})

	t.Run("compares against exactly one sentinel", func(t *testing.T) {
		err := malformedProofError("bad proof", nil)
		assert.ErrorIs(t, err, ErrMalformedProof)
		assert.NotErrorIs(t, err, ErrProofBindingMismatch)
		assert.NotErrorIs(t, err, ErrUpstreamVerification)
	})

	t.Run("unwraps the cause", func(t *testing.T) {
		cause := errors.New("signature check failed")
		err := malformedProofError("bad proof", cause)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("WithHeader accumulates challenge headers", func(t *testing.T) {
		err := missingCredentialError("none").
			WithHeader("WWW-Authenticate", "Bearer").
			WithHeader("DPoP-Nonce", "abc")
		assert.Equal(t, "Bearer", err.Headers["WWW-Authenticate"])
		assert.Equal(t, "abc", err.Headers["DPoP-Nonce"])
	})
}

func TestErrorConstructors(t *testing.T) {
	t.Run("proof mismatch is a 401 with a DPoP challenge", func(t *testing.T) {
		err := proofMismatchError(MismatchTokenHash, "ath mismatch")
		assert.Equal(t, http.StatusUnauthorized, err.Status)
		assert.Equal(t, CodeInvalidDPoPProof, err.Code)
		assert.Contains(t, err.Headers["WWW-Authenticate"], "DPoP")
	})

	t.Run("malformed proof is a 400", func(t *testing.T) {
		err := malformedProofError("garbled", nil)
		assert.Equal(t, http.StatusBadRequest, err.Status)
		assert.Equal(t, CodeInvalidDPoPProof, err.Code)
	})

	t.Run("insufficient scope is a 403", func(t *testing.T) {
		err := NewInsufficientScopeError("missing admin")
		assert.Equal(t, http.StatusForbidden, err.Status)
		assert.Equal(t, CodeInsufficientScope, err.Code)
		assert.ErrorIs(t, err, ErrInsufficientScope)
	})

	t.Run("upstream error carries its inputs through", func(t *testing.T) {
		cause := errors.New("expired")
		err := NewUpstreamError(http.StatusUnauthorized, CodeInvalidToken, "token is expired", cause)
		assert.Equal(t, http.StatusUnauthorized, err.Status)
		assert.Equal(t, CodeInvalidToken, err.Code)
		assert.ErrorIs(t, err, ErrUpstreamVerification)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("malformed header is a 400 invalid_request", func(t *testing.T) {
		cause := errors.New("bad shape")
		err := NewMalformedHeaderError("Authorization header format", cause)
		assert.Equal(t, http.StatusBadRequest, err.Status)
		assert.Equal(t, CodeInvalidRequest, err.Code)
		assert.ErrorIs(t, err, ErrMalformedHeader)
		assert.ErrorIs(t, err, cause)
	})
}

func TestAsAuthError(t *testing.T) {
	t.Run("passes an AuthError through", func(t *testing.T) {
		original := NewInsufficientScopeError("nope")
		assert.Same(t, original, AsAuthError(original))
	})

	t.Run("finds a wrapped AuthError", func(t *testing.T) {
		wrapped := missingCredentialError("none")
		err := AsAuthError(wrappedErr{wrapped})
		assert.Same(t, wrapped, err)
	})

	t.Run("wraps anything else as an unexpected 400", func(t *testing.T) {
		err := AsAuthError(errors.New("boom"))
		require.NotNil(t, err)
		assert.Equal(t, http.StatusBadRequest, err.Status)
		assert.Equal(t, CodeInvalidRequest, err.Code)
		assert.ErrorIs(t, err, ErrUnexpectedFailure)
	})
}

type wrappedErr struct{ inner error }

func (w wrappedErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w wrappedErr) Unwrap() error { return w.inner }
