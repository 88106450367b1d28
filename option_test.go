package dpopmiddleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofbound/go-dpop-middleware/core"
)

type stubVerifier struct{}

func (stubVerifier) VerifyAccessToken(_ context.Context, _ string) (core.Claims, error) {
	return core.Claims{"sub": "stub"}, nil
}

type stubDecoder struct{}

func (stubDecoder) DecodeProof(_ context.Context, _ string) (core.ProofClaims, error) {
	return nil, nil
}

// stubVerifierDecoder implements both interfaces, like validator.Verifier.
type stubVerifierDecoder struct {
	stubVerifier
	stubDecoder
}

func TestNew(t *testing.T) {
	t.Run("requires a verifier", func(t *testing.T) {
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("verifier without a decoder needs DPoP disabled", func(t *testing.T) {
		_, err := New(WithVerifier(stubVerifier{}))
		assert.Error(t, err)

		m, err := New(WithVerifier(stubVerifier{}), WithDPoPMode(core.DPoPDisabled))
		require.NoError(t, err)
		assert.NotNil(t, m)
	})

	t.Run("a verifier that decodes proofs needs no explicit decoder", func(t *testing.T) {
		m, err := New(WithVerifier(stubVerifierDecoder{}))
		require.NoError(t, err)
		assert.NotNil(t, m)
	})

	t.Run("explicit decoder wins over the verifier", func(t *testing.T) {
		m, err := New(WithVerifier(stubVerifier{}), WithProofDecoder(stubDecoder{}))
		require.NoError(t, err)
		assert.NotNil(t, m)
	})

	t.Run("invalid options surface at construction", func(t *testing.T) {
		cases := map[string]Option{
			"nil verifier":       WithVerifier(nil),
			"nil decoder":        WithProofDecoder(nil),
			"zero proof max age": WithProofMaxAge(0),
			"negative leeway":    WithProofIATLeeway(-time.Second),
			"empty scope":        WithRequiredScopes("read", " "),
			"nil error handler":  WithErrorHandler(nil),
			"nil metrics":        WithMetrics(nil),
			"nil tracer":         WithTracer(nil),
			"nil exclusion":      WithExclusionHandler(nil),
		}
		for name, opt := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := New(WithVerifier(stubVerifierDecoder{}), opt)
				assert.Error(t, err)
			})
		}
	})

	t.Run("defaults", func(t *testing.T) {
		m, err := New(WithVerifier(stubVerifierDecoder{}))
		require.NoError(t, err)

		assert.Equal(t, core.DPoPAllowed, m.dpopMode)
		assert.Equal(t, 300*time.Second, m.proofMaxAge)
		assert.Equal(t, 30*time.Second, m.iatLeeway)
		assert.True(t, m.validateOnOptions)
		assert.False(t, m.trustProxy)
		assert.NotNil(t, m.errorHandler)
		assert.IsType(t, &NoopMetrics{}, m.metrics)
		assert.IsType(t, &NoopTracer{}, m.tracer)
	})
}
