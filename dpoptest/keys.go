// Package dpoptest generates wire-correct DPoP proofs and access tokens, and
// hosts an in-process token authority for tests. The signing contract here is
// exactly what the validator accepts: ES256 proofs with the public key in the
// header, RS256 tokens with an optional cnf.jkt confirmation. Key material is
// always injected per call site; the package holds no process-wide keys.
package dpoptest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/proofbound/go-dpop-middleware/validator"
)

// KeyPair is a signing key with its public counterpart, both as JWKs.
type KeyPair struct {
	private jwk.Key
	public  jwk.Key
	alg     jwa.SignatureAlgorithm
	kid     string
}

// NewES256KeyPair generates a fresh P-256 pair for DPoP proofs.
func NewES256KeyPair() (*KeyPair, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate EC key: %w", err)
	}
	return newKeyPair(raw, jwa.ES256)
}

// NewRS256KeyPair generates a fresh RSA pair for access tokens.
func NewRS256KeyPair() (*KeyPair, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("could not generate RSA key: %w", err)
	}
	return newKeyPair(raw, jwa.RS256)
}

func newKeyPair(raw any, alg jwa.SignatureAlgorithm) (*KeyPair, error) {
	private, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("could not build JWK: %w", err)
	}

	kid, err := randomKeyID()
	if err != nil {
		return nil, err
	}
	for name, value := range map[string]any{
		jwk.KeyIDKey:     kid,
		jwk.AlgorithmKey: alg,
		jwk.KeyUsageKey:  "sig",
	} {
		if err := private.Set(name, value); err != nil {
			return nil, fmt.Errorf("could not set %s on JWK: %w", name, err)
		}
	}

	public, err := jwk.PublicKeyOf(private)
	if err != nil {
		return nil, fmt.Errorf("could not derive public JWK: %w", err)
	}

	return &KeyPair{private: private, public: public, alg: alg, kid: kid}, nil
}

// PrivateKey returns the signing JWK.
func (k *KeyPair) PrivateKey() jwk.Key { return k.private }

// PublicKey returns the verification JWK, suitable for a JWKS or a proof
// header.
func (k *KeyPair) PublicKey() jwk.Key { return k.public }

// Algorithm returns the signing algorithm bound to the key type.
func (k *KeyPair) Algorithm() jwa.SignatureAlgorithm { return k.alg }

// KeyID returns the pair's kid.
func (k *KeyPair) KeyID() string { return k.kid }

// Thumbprint returns the RFC 7638 thumbprint of the public key. Only EC
// pairs have one in this design.
func (k *KeyPair) Thumbprint() (string, error) {
	return validator.Thumbprint(k.public)
}

func randomKeyID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("could not generate key id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
