package validator

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrMalformedKey is returned when a key is missing one of the members the
// thumbprint is computed over.
var ErrMalformedKey = errors.New("jwk is missing a required thumbprint member")

// thumbprintMembers is the canonical RFC 7638 serialization for an EC key:
// exactly crv, kty, x, y with keys in lexicographic order and no inserted
// whitespace. Field order here is what makes encoding/json emit that.
type thumbprintMembers struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of an EC key, encoded
// as unpadded base64url. Members beyond crv/kty/x/y are ignored. Identical
// key material always yields an identical thumbprint regardless of how the
// input JWK was ordered or formatted.
func Thumbprint(key jwk.Key) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: key is nil", ErrMalformedKey)
	}
	if key.KeyType() != jwa.EC {
		return "", fmt.Errorf("%w: key type %q is not EC", ErrMalformedKey, key.KeyType())
	}

	crv, err := stringMember(key, jwk.ECDSACrvKey)
	if err != nil {
		return "", err
	}
	x, err := bytesMember(key, jwk.ECDSAXKey)
	if err != nil {
		return "", err
	}
	y, err := bytesMember(key, jwk.ECDSAYKey)
	if err != nil {
		return "", err
	}

	canonical, err := json.Marshal(thumbprintMembers{
		Crv: crv,
		Kty: jwa.EC.String(),
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	})
	if err != nil {
		return "", fmt.Errorf("could not serialize thumbprint members: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func stringMember(key jwk.Key, name string) (string, error) {
	raw, ok := key.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMalformedKey, name)
	}
	if s, ok := raw.(fmt.Stringer); ok {
		return s.String(), nil
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", ErrMalformedKey, name)
	}
	return s, nil
}

func bytesMember(key jwk.Key, name string) ([]byte, error) {
	raw, ok := key.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, name)
	}
	b, ok := raw.([]byte)
	if !ok || len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, name)
	}
	return b, nil
}
