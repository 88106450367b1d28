package validator

import (
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

// Option configures a Verifier.
type Option func(*Verifier) error

// WithClockSkew sets the leeway applied to exp, nbf and iat checks.
// Default: none.
func WithClockSkew(skew time.Duration) Option {
	return func(v *Verifier) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		v.clockSkew = skew
		return nil
	}
}

// WithAllowedAlgorithms restricts the signing algorithms accepted for access
// tokens. The default set covers the common RSA and ECDSA algorithms.
func WithAllowedAlgorithms(algs ...jwa.SignatureAlgorithm) Option {
	return func(v *Verifier) error {
		if len(algs) == 0 {
			return errors.New("at least one algorithm is required")
		}
		allowed := make(map[jwa.SignatureAlgorithm]bool, len(algs))
		for _, alg := range algs {
			allowed[alg] = true
		}
		v.algorithms = allowed
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}
