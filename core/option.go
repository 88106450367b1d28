package core

import (
	"errors"
	"time"
)

// Option configures a Core. Options return errors so invalid configuration
// surfaces at construction, not per request.
type Option func(*Core) error

// New builds a Core. WithVerifier is required; a ProofDecoder is required
// unless the mode is DPoPDisabled.
func New(opts ...Option) (*Core, error) {
	c := &Core{
		mode:        DPoPAllowed,
		proofMaxAge: 300 * time.Second,
		iatLeeway:   30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.verifier == nil {
		return nil, errors.New("token verifier is required (use WithVerifier)")
	}
	if c.decoder == nil && c.mode != DPoPDisabled {
		return nil, errors.New("proof decoder is required unless DPoP is disabled (use WithProofDecoder)")
	}

	return c, nil
}

// WithVerifier sets the external access token verifier. Required.
func WithVerifier(v TokenVerifier) Option {
	return func(c *Core) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		c.verifier = v
		return nil
	}
}

// WithProofDecoder sets the DPoP proof decoder.
func WithProofDecoder(d ProofDecoder) Option {
	return func(c *Core) error {
		if d == nil {
			return errors.New("proof decoder cannot be nil")
		}
		c.decoder = d
		return nil
	}
}

// WithDPoPMode sets the scheme policy. Default: DPoPAllowed.
func WithDPoPMode(mode DPoPMode) Option {
	return func(c *Core) error {
		c.mode = mode
		return nil
	}
}

// WithProofMaxAge sets how far in the past a proof's iat may lie.
// Default: 300s.
func WithProofMaxAge(maxAge time.Duration) Option {
	return func(c *Core) error {
		if maxAge < 0 {
			return errors.New("proof max age cannot be negative")
		}
		c.proofMaxAge = maxAge
		return nil
	}
}

// WithIATLeeway sets the clock skew allowance for proofs issued slightly in
// the future. Default: 30s.
func WithIATLeeway(leeway time.Duration) Option {
	return func(c *Core) error {
		if leeway < 0 {
			return errors.New("iat leeway cannot be negative")
		}
		c.iatLeeway = leeway
		return nil
	}
}

// WithExpectedNonce requires every proof to carry the given server nonce.
func WithExpectedNonce(nonce string) Option {
	return func(c *Core) error {
		c.expectedNonce = nonce
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger Logger) Option {
	return func(c *Core) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Core) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}
