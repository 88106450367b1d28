package validator_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofbound/go-dpop-middleware/dpoptest"
	"github.com/proofbound/go-dpop-middleware/validator"
)

func newDecoder(t *testing.T) *validator.Verifier {
	t.Helper()
	v, err := validator.New(
		func(ctx context.Context) (jwk.Set, error) { return jwk.NewSet(), nil },
		"https://issuer.example.test/",
		[]string{"https://api.example.test"},
	)
	require.NoError(t, err)
	return v
}

func signProof(t *testing.T, key *dpoptest.KeyPair, mutate func(opts *dpoptest.ProofOptions)) string {
	t.Helper()
	opts := dpoptest.ProofOptions{
		Key:         key,
		Method:      "GET",
		URL:         "https://api.example.test/resource",
		AccessToken: "the-access-token",
	}
	if mutate != nil {
		mutate(&opts)
	}
	proof, err := dpoptest.SignProof(opts)
	require.NoError(t, err)
	return proof
}

func TestDecodeProof(t *testing.T) {
	key, err := dpoptest.NewES256KeyPair()
	require.NoError(t, err)
	decoder := newDecoder(t)

	t.Run("valid proof decodes with all claims and the key thumbprint", func(t *testing.T) {
		proof := signProof(t, key, func(opts *dpoptest.ProofOptions) {
			opts.Nonce = "server-nonce"
		})

		claims, err := decoder.DecodeProof(context.Background(), proof)
		require.NoError(t, err)

		assert.NotEmpty(t, claims.GetJTI())
		assert.Equal(t, "GET", claims.GetHTM())
		assert.Equal(t, "https://api.example.test/resource", claims.GetHTU())
		assert.InDelta(t, time.Now().Unix(), claims.GetIAT(), 5)
		assert.NotEmpty(t, claims.GetATH())
		assert.Equal(t, "server-nonce", claims.GetNonce())

		jkt, err := key.Thumbprint()
		require.NoError(t, err)
		assert.Equal(t, jkt, claims.GetPublicKeyThumbprint())
	})

	t.Run("method is upper-cased into htm at signing time", func(t *testing.T) {
		proof := signProof(t, key, func(opts *dpoptest.ProofOptions) {
			opts.Method = "post"
		})

		claims, err := decoder.DecodeProof(context.Background(), proof)
		require.NoError(t, err)
		assert.Equal(t, "POST", claims.GetHTM())
	})

	t.Run("empty proof", func(t *testing.T) {
		_, err := decoder.DecodeProof(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("not a compact JWT", func(t *testing.T) {
		_, err := decoder.DecodeProof(context.Background(), "only-one-part")
		assert.Error(t, err)
	})

	t.Run("too many segments", func(t *testing.T) {
		_, err := decoder.DecodeProof(context.Background(), strings.Repeat("a.", 10)+"a")
		assert.Error(t, err)
	})

	t.Run("wrong typ header", func(t *testing.T) {
		proof := resignWithHeaders(t, key, func(headers jws.Headers) {
			require.NoError(t, headers.Set(jws.TypeKey, "JWT"))
		})

		_, err := decoder.DecodeProof(context.Background(), proof)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "typ")
	})

	t.Run("missing jwk header", func(t *testing.T) {
		proof := resignWithHeaders(t, key, func(headers jws.Headers) {
			require.NoError(t, headers.Set(jws.TypeKey, "dpop+jwt"))
		})

		_, err := decoder.DecodeProof(context.Background(), proof)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwk")
	})

	t.Run("private key material in the jwk header", func(t *testing.T) {
		proof := resignWithHeaders(t, key, func(headers jws.Headers) {
			require.NoError(t, headers.Set(jws.TypeKey, "dpop+jwt"))
			require.NoError(t, headers.Set(jws.JWKKey, key.PrivateKey()))
		})

		_, err := decoder.DecodeProof(context.Background(), proof)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "private key")
	})

	t.Run("signature from a different key", func(t *testing.T) {
		otherKey, err := dpoptest.NewES256KeyPair()
		require.NoError(t, err)

		// Proof signed by otherKey but advertising key's public JWK.
		proof := signProof(t, otherKey, nil)
		parts := strings.Split(proof, ".")
		header := map[string]any{}
		headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(headerJSON, &header))
		header["jwk"] = key.PublicKey()
		forgedHeader, err := json.Marshal(header)
		require.NoError(t, err)
		forged := base64.RawURLEncoding.EncodeToString(forgedHeader) + "." + parts[1] + "." + parts[2]

		_, err = decoder.DecodeProof(context.Background(), forged)
		assert.Error(t, err)
	})

	t.Run("missing required claims", func(t *testing.T) {
		proof := resignWithClaims(t, key, map[string]any{
			"jti": "id-1",
			"iat": time.Now().Unix(),
			"htm": "GET",
			// htu missing
		})

		_, err := decoder.DecodeProof(context.Background(), proof)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "htu")
	})
}

// resignWithHeaders signs a well-formed claim set with custom protected
// headers, to mint proofs the public signer refuses to produce.
func resignWithHeaders(t *testing.T, key *dpoptest.KeyPair, setHeaders func(jws.Headers)) string {
	t.Helper()
	claims := map[string]any{
		"jti": "id-1",
		"htm": "GET",
		"htu": "https://api.example.test/resource",
		"iat": time.Now().Unix(),
	}
	return signRaw(t, key, claims, setHeaders)
}

func resignWithClaims(t *testing.T, key *dpoptest.KeyPair, claims map[string]any) string {
	t.Helper()
	return signRaw(t, key, claims, func(headers jws.Headers) {
		require.NoError(t, headers.Set(jws.TypeKey, "dpop+jwt"))
		require.NoError(t, headers.Set(jws.JWKKey, key.PublicKey()))
	})
}

func signRaw(t *testing.T, key *dpoptest.KeyPair, claims map[string]any, setHeaders func(jws.Headers)) string {
	t.Helper()
	builder := jwt.NewBuilder()
	for name, value := range claims {
		builder.Claim(name, value)
	}
	token, err := builder.Build()
	require.NoError(t, err)

	headers := jws.NewHeaders()
	if setHeaders != nil {
		setHeaders(headers)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, key.PrivateKey(), jws.WithProtectedHeaders(headers)))
	require.NoError(t, err)
	return string(signed)
}
