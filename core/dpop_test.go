package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyBinding(t *testing.T, proof *staticProof, opts ...Option) error {
	t.Helper()
	token := "the-access-token"
	c := newTestCore(t,
		&mockVerifier{claims: Claims{"sub": "user-1", "cnf": map[string]any{"jkt": proof.jkt}}},
		&mockDecoder{proof: proof},
		opts...)

	_, _, err := c.VerifyRequest(context.Background(), Request{
		Scheme:      SchemeDPoP,
		AccessToken: token,
		Proof:       "the-proof",
		Method:      "GET",
		URL:         "https://api.example.test/resource",
	})
	return err
}

func TestValidateProofBinding(t *testing.T) {
	token := "the-access-token"

	t.Run("htm mismatch", func(t *testing.T) {
		proof := matchingProof(token)
		proof.htm = "POST"

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchMethod, AsAuthError(err).Reason)
	})

	t.Run("htm comparison is case-insensitive on the request side", func(t *testing.T) {
		c := newTestCore(t,
			&mockVerifier{claims: Claims{"sub": "u"}},
			&mockDecoder{proof: matchingProof(token)})

		_, _, err := c.VerifyRequest(context.Background(), Request{
			Scheme:      SchemeDPoP,
			AccessToken: token,
			Proof:       "p",
			Method:      "get",
			URL:         "https://api.example.test/resource",
		})

		assert.NoError(t, err)
	})

	t.Run("htu mismatch", func(t *testing.T) {
		proof := matchingProof(token)
		proof.htu = "https://api.example.test/other"

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchURL, AsAuthError(err).Reason)
	})

	t.Run("htu comparison is exact, trailing slash counts", func(t *testing.T) {
		proof := matchingProof(token)
		proof.htu = "https://api.example.test/resource/"

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchURL, AsAuthError(err).Reason)
	})

	t.Run("ath mismatch", func(t *testing.T) {
		proof := matchingProof(token)
		proof.ath = hashToken("a-different-token")

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchTokenHash, AsAuthError(err).Reason)
	})

	t.Run("missing ath fails the token hash check", func(t *testing.T) {
		proof := matchingProof(token)
		proof.ath = ""

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchTokenHash, AsAuthError(err).Reason)
	})

	t.Run("iat too old", func(t *testing.T) {
		proof := matchingProof(token)
		proof.iat = fixedNow.Add(-301 * time.Second).Unix()

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchIATWindow, AsAuthError(err).Reason)
	})

	t.Run("iat at the max age boundary passes", func(t *testing.T) {
		proof := matchingProof(token)
		proof.iat = fixedNow.Add(-300 * time.Second).Unix()

		assert.NoError(t, verifyBinding(t, proof))
	})

	t.Run("iat too far in the future", func(t *testing.T) {
		proof := matchingProof(token)
		proof.iat = fixedNow.Add(31 * time.Second).Unix()

		err := verifyBinding(t, proof)

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchIATWindow, AsAuthError(err).Reason)
	})

	t.Run("iat within the leeway passes", func(t *testing.T) {
		proof := matchingProof(token)
		proof.iat = fixedNow.Add(29 * time.Second).Unix()

		assert.NoError(t, verifyBinding(t, proof))
	})

	t.Run("nonce mismatch when a nonce is expected", func(t *testing.T) {
		proof := matchingProof(token)
		proof.nonce = "stale-nonce"

		err := verifyBinding(t, proof, WithExpectedNonce("fresh-nonce"))

		require.ErrorIs(t, err, ErrProofBindingMismatch)
		assert.Equal(t, MismatchNonce, AsAuthError(err).Reason)
	})

	t.Run("matching nonce passes", func(t *testing.T) {
		proof := matchingProof(token)
		proof.nonce = "fresh-nonce"

		assert.NoError(t, verifyBinding(t, proof, WithExpectedNonce("fresh-nonce")))
	})

	t.Run("proof nonce is ignored when none is expected", func(t *testing.T) {
		proof := matchingProof(token)
		proof.nonce = "whatever"

		assert.NoError(t, verifyBinding(t, proof))
	})
}

func TestDPoPModeString(t *testing.T) {
	assert.Equal(t, "DPoPAllowed", DPoPAllowed.String())
	assert.Equal(t, "DPoPRequired", DPoPRequired.String())
	assert.Equal(t, "DPoPDisabled", DPoPDisabled.String())
	assert.Equal(t, "DPoPMode(42)", DPoPMode(42).String())
}
