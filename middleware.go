// Package dpopmiddleware guards HTTP requests with bearer or DPoP-bound
// access tokens. It parses the Authorization scheme, derives a canonical
// request URL that is safe behind reverse proxies, delegates token
// verification to a pluggable verifier and checks every DPoP proof binding
// constraint before a request reaches the application.
package dpopmiddleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/proofbound/go-dpop-middleware/core"
)

// Middleware authenticates inbound requests. Build one with New at startup;
// all fields are read-only afterwards, so a single instance serves
// concurrent requests.
type Middleware struct {
	core              *core.Core
	errorHandler      ErrorHandler
	trustProxy        bool
	requiredScopes    []string
	validateOnOptions bool
	exclusionHandler  func(r *http.Request) bool
	logger            Logger
	metrics           Metrics
	tracer            Tracer

	// construction inputs, consumed by New
	verifier      core.TokenVerifier
	decoder       core.ProofDecoder
	dpopMode      core.DPoPMode
	proofMaxAge   time.Duration
	iatLeeway     time.Duration
	expectedNonce string
}

// New constructs a Middleware. WithVerifier is required; when the verifier
// also implements core.ProofDecoder (as validator.Verifier does) it doubles
// as the proof decoder unless one is set explicitly.
func New(opts ...Option) (*Middleware, error) {
	m := &Middleware{
		dpopMode:          core.DPoPAllowed,
		proofMaxAge:       300 * time.Second,
		iatLeeway:         30 * time.Second,
		validateOnOptions: true,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if m.errorHandler == nil {
		m.errorHandler = DefaultErrorHandler
	}
	if m.metrics == nil {
		m.metrics = &NoopMetrics{}
	}
	if m.tracer == nil {
		m.tracer = &NoopTracer{}
	}

	if m.decoder == nil && m.verifier != nil {
		if decoder, ok := m.verifier.(core.ProofDecoder); ok {
			m.decoder = decoder
		}
	}

	coreOpts := []core.Option{
		core.WithVerifier(m.verifier),
		core.WithDPoPMode(m.dpopMode),
		core.WithProofMaxAge(m.proofMaxAge),
		core.WithIATLeeway(m.iatLeeway),
	}
	if m.decoder != nil {
		coreOpts = append(coreOpts, core.WithProofDecoder(m.decoder))
	}
	if m.expectedNonce != "" {
		coreOpts = append(coreOpts, core.WithExpectedNonce(m.expectedNonce))
	}
	if m.logger != nil {
		coreOpts = append(coreOpts, core.WithLogger(m.logger))
	}

	c, err := core.New(coreOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid middleware configuration: %w", err)
	}
	m.core = c

	return m, nil
}

// CheckAuth wraps next with the full authentication flow. On success the
// verified claims (and, for DPoP requests, the proof context) are stored in
// the request context; on rejection the error handler writes the structured
// error response and next never runs.
func (m *Middleware) CheckAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionHandler != nil && m.exclusionHandler(r) {
			m.debugf("skipping auth for excluded URL %s", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		claims, dpopCtx, err := m.verifyRequest(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}

		ctx := core.SetClaims(r.Context(), claims)
		if dpopCtx != nil {
			ctx = core.SetDPoPContext(ctx, dpopCtx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) verifyRequest(r *http.Request) (core.Claims, *core.DPoPContext, error) {
	start := time.Now()
	ctx, span := m.tracer.StartSpan(r.Context(), "dpopmiddleware.verify")
	defer span.Finish()

	cred, err := ParseAuthorization(r)
	if err != nil {
		authErr := core.NewMalformedHeaderError(err.Error(), err)
		m.observe(start, string(cred.Scheme), authErr)
		return nil, nil, authErr
	}
	proof, err := ProofHeader(r)
	if err != nil {
		authErr := core.NewMalformedHeaderError(err.Error(), err)
		m.observe(start, string(cred.Scheme), authErr)
		return nil, nil, authErr
	}

	canonicalURL := CanonicalRequestURL(r, m.trustProxy)
	span.SetTag("auth.scheme", string(cred.Scheme))
	span.SetTag("http.canonical_url", canonicalURL)

	claims, dpopCtx, err := m.core.VerifyRequest(ctx, core.Request{
		Scheme:      cred.Scheme,
		AccessToken: cred.Token,
		Proof:       proof,
		Method:      r.Method,
		URL:         canonicalURL,
	})
	if err != nil {
		authErr := core.AsAuthError(err)
		span.SetTag("error", authErr.Code)
		m.observe(start, string(cred.Scheme), authErr)
		return nil, nil, err
	}

	if len(m.requiredScopes) > 0 && !claims.HasAllScopes(m.requiredScopes...) {
		authErr := core.NewInsufficientScopeError("token does not grant the required scopes")
		span.SetTag("error", authErr.Code)
		m.observe(start, string(cred.Scheme), authErr)
		return nil, nil, authErr
	}

	m.observe(start, string(cred.Scheme), nil)
	return claims, dpopCtx, nil
}

// observe records one verification outcome.
func (m *Middleware) observe(start time.Time, scheme string, authErr *core.AuthError) {
	result := "ok"
	status := http.StatusOK
	if authErr != nil {
		result = authErr.Code
		status = authErr.Status
	}
	if scheme == "" {
		scheme = "none"
	}
	tags := map[string]string{
		"scheme": scheme,
		"result": result,
		"status": strconv.Itoa(status),
	}
	m.metrics.IncCounter("dpop_auth_requests_total", tags)
	m.metrics.ObserveHistogram("dpop_auth_duration_seconds", time.Since(start).Seconds(), tags)
}

func (m *Middleware) debugf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debugf(format, args...)
	}
}
