package dpopmiddleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/proofbound/go-dpop-middleware/core"
)

// Option configures a Middleware during New.
type Option func(*Middleware) error

// WithVerifier sets the access token verifier. Required. When the verifier
// also implements core.ProofDecoder it is used to decode DPoP proofs unless
// WithProofDecoder overrides that.
func WithVerifier(v core.TokenVerifier) Option {
	return func(m *Middleware) error {
		if v == nil {
			return errors.New("verifier must not be nil")
		}
		m.verifier = v
		return nil
	}
}

// WithProofDecoder sets an explicit DPoP proof decoder.
func WithProofDecoder(d core.ProofDecoder) Option {
	return func(m *Middleware) error {
		if d == nil {
			return errors.New("proof decoder must not be nil")
		}
		m.decoder = d
		return nil
	}
}

// WithDPoPMode controls whether DPoP-bound tokens are allowed, required or
// rejected. The default is core.DPoPAllowed.
func WithDPoPMode(mode core.DPoPMode) Option {
	return func(m *Middleware) error {
		m.dpopMode = mode
		return nil
	}
}

// WithTrustProxy enables use of the X-Forwarded-Proto, X-Forwarded-Host and
// X-Forwarded-Prefix headers when deriving the canonical request URL. Enable
// it only when a trusted reverse proxy sets those headers; the default is
// to ignore them.
func WithTrustProxy(trust bool) Option {
	return func(m *Middleware) error {
		m.trustProxy = trust
		return nil
	}
}

// WithProofMaxAge sets how far in the past a proof's iat may lie.
func WithProofMaxAge(d time.Duration) Option {
	return func(m *Middleware) error {
		if d <= 0 {
			return errors.New("proof max age must be positive")
		}
		m.proofMaxAge = d
		return nil
	}
}

// WithProofIATLeeway sets how far into the future a proof's iat may lie,
// absorbing clock drift between client and server.
func WithProofIATLeeway(d time.Duration) Option {
	return func(m *Middleware) error {
		if d < 0 {
			return errors.New("iat leeway must not be negative")
		}
		m.iatLeeway = d
		return nil
	}
}

// WithExpectedProofNonce requires every DPoP proof to carry the given nonce.
func WithExpectedProofNonce(nonce string) Option {
	return func(m *Middleware) error {
		m.expectedNonce = nonce
		return nil
	}
}

// WithRequiredScopes rejects tokens that do not grant every listed scope
// with 403 insufficient_scope.
func WithRequiredScopes(scopes ...string) Option {
	return func(m *Middleware) error {
		for _, s := range scopes {
			if strings.TrimSpace(s) == "" {
				return errors.New("required scopes must not be empty")
			}
		}
		m.requiredScopes = scopes
		return nil
	}
}

// WithErrorHandler replaces DefaultErrorHandler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(m *Middleware) error {
		if h == nil {
			return errors.New("error handler must not be nil")
		}
		m.errorHandler = h
		return nil
	}
}

// WithLogger sets the logger used by the middleware and its core engine.
func WithLogger(l Logger) Option {
	return func(m *Middleware) error {
		m.logger = l
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Middleware) error {
		if metrics == nil {
			return errors.New("metrics must not be nil")
		}
		m.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(m *Middleware) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		m.tracer = tracer
		return nil
	}
}

// WithValidateOnOptions controls whether CORS preflight (OPTIONS) requests
// are authenticated. Defaults to true.
func WithValidateOnOptions(validate bool) Option {
	return func(m *Middleware) error {
		m.validateOnOptions = validate
		return nil
	}
}

// WithExclusionURLs skips authentication entirely for requests whose path
// matches one of the given paths exactly.
func WithExclusionURLs(paths ...string) Option {
	return func(m *Middleware) error {
		excluded := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			excluded[p] = struct{}{}
		}
		m.exclusionHandler = func(r *http.Request) bool {
			_, ok := excluded[r.URL.Path]
			return ok
		}
		return nil
	}
}

// WithExclusionHandler skips authentication for requests the handler
// returns true for. It replaces any WithExclusionURLs configuration.
func WithExclusionHandler(h func(r *http.Request) bool) Option {
	return func(m *Middleware) error {
		if h == nil {
			return errors.New("exclusion handler must not be nil")
		}
		m.exclusionHandler = h
		return nil
	}
}
