package dpoptest

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidTokenSpec is returned when the token options are missing a
// required construction input.
var ErrInvalidTokenSpec = errors.New("invalid token spec")

// TokenOptions describes one access token.
//
// The issuer is tri-state: leave Issuer empty to derive the default
// https://{domain}/ from Domain, set it to pin an explicit value, or set
// OmitIssuer to leave the iss claim out entirely (not an empty string).
type TokenOptions struct {
	// Key signs the token. Required; distinct from any proof key, since
	// tokens and proofs are never signed by the same key type.
	Key *KeyPair

	// Subject becomes the sub claim. Required.
	Subject string

	// Domain derives the default issuer when Issuer is empty.
	Domain string

	// Audience, when set, becomes the aud claim.
	Audience string

	// Issuer pins an explicit iss value.
	Issuer string

	// OmitIssuer leaves the iss claim out entirely.
	OmitIssuer bool

	// OmitIssuedAt / OmitExpiry leave the respective claims out.
	OmitIssuedAt bool
	OmitExpiry   bool

	// Lifetime controls exp; defaults to one hour.
	Lifetime time.Duration

	// ExtraClaims are merged in first; sub and the registered claims above
	// overwrite on collision.
	ExtraClaims map[string]any

	// ConfirmationThumbprint, when set, makes the token DPoP-bound via
	// cnf = {jkt: thumbprint}.
	ConfirmationThumbprint string
}

// SignToken builds and signs an access token.
func SignToken(opts TokenOptions) (string, error) {
	if opts.Key == nil {
		return "", fmt.Errorf("%w: signing key is required", ErrInvalidTokenSpec)
	}
	if opts.Subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidTokenSpec)
	}

	builder := jwt.NewBuilder()
	for name, value := range opts.ExtraClaims {
		builder.Claim(name, value)
	}

	builder.Claim("sub", opts.Subject)

	now := time.Now()
	if !opts.OmitIssuedAt {
		builder.Claim("iat", now.Unix())
	}
	if !opts.OmitExpiry {
		lifetime := opts.Lifetime
		if lifetime <= 0 {
			lifetime = time.Hour
		}
		builder.Claim("exp", now.Add(lifetime).Unix())
	}

	if !opts.OmitIssuer {
		issuer := opts.Issuer
		if issuer == "" {
			issuer = fmt.Sprintf("https://%s/", opts.Domain)
		}
		builder.Claim("iss", issuer)
	}

	if opts.Audience != "" {
		builder.Claim("aud", opts.Audience)
	}

	if opts.ConfirmationThumbprint != "" {
		builder.Claim("cnf", map[string]any{"jkt": opts.ConfirmationThumbprint})
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("could not build token claims: %w", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, opts.Key.KeyID()); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(opts.Key.Algorithm(), opts.Key.PrivateKey(), jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("could not sign token: %w", err)
	}
	return string(signed), nil
}

// DecodeToken decodes a signed token without verifying it, for assertions on
// minted claims. Production verification goes through validator.Verifier.
func DecodeToken(token string) (jwt.Token, error) {
	parsed, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("could not decode token: %w", err)
	}
	return parsed, nil
}
