package dpoptest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ProofOptions describes one DPoP proof. A proof authenticates exactly one
// request; callers mint a fresh one per request.
type ProofOptions struct {
	// Key signs the proof and is embedded (public part only) in the header.
	// Required; must be an EC pair.
	Key *KeyPair

	// Method is the bound HTTP method; upper-cased into htm.
	Method string

	// URL is the bound request URL, written to htu exactly as given. The
	// caller pre-canonicalizes it.
	URL string

	// AccessToken, when set, binds the proof to the token via the ath claim.
	AccessToken string

	// Nonce, when set, is copied into the nonce claim.
	Nonce string

	// IssuedAtOffset shifts iat from now, e.g. to mint expired proofs.
	IssuedAtOffset time.Duration
}

// SignProof builds and signs a DPoP proof JWT: typ "dpop+jwt", the public
// key in the header, and the jti/htm/htu/iat (plus optional ath, nonce)
// claim set.
func SignProof(opts ProofOptions) (string, error) {
	if opts.Key == nil {
		return "", errors.New("proof key is required")
	}
	if opts.Key.Algorithm() != jwa.ES256 {
		return "", fmt.Errorf("proofs are signed with ES256, key has %q", opts.Key.Algorithm())
	}
	if opts.Method == "" || opts.URL == "" {
		return "", errors.New("proof method and URL are required")
	}

	jti, err := randomJTI()
	if err != nil {
		return "", err
	}

	builder := jwt.NewBuilder().
		Claim("jti", jti).
		Claim("htm", strings.ToUpper(opts.Method)).
		Claim("htu", opts.URL).
		Claim("iat", time.Now().Add(opts.IssuedAtOffset).Unix())

	if opts.AccessToken != "" {
		sum := sha256.Sum256([]byte(opts.AccessToken))
		builder.Claim("ath", base64.RawURLEncoding.EncodeToString(sum[:]))
	}
	if opts.Nonce != "" {
		builder.Claim("nonce", opts.Nonce)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("could not build proof claims: %w", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, "dpop+jwt"); err != nil {
		return "", err
	}
	if err := headers.Set(jws.JWKKey, opts.Key.PublicKey()); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, opts.Key.PrivateKey(), jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("could not sign proof: %w", err)
	}
	return string(signed), nil
}

// randomJTI returns 16 bytes of entropy as unpadded base64url.
func randomJTI() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("could not generate jti: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
