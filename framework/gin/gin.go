// Package dpopgin adapts the middleware to Gin handler chains.
package dpopgin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	dpopmiddleware "github.com/proofbound/go-dpop-middleware"
	"github.com/proofbound/go-dpop-middleware/core"
)

const (
	DefaultClaimsKey = "auth.claims"
	DefaultProofKey  = "auth.dpop"
)

var (
	ErrMissingClaims = errors.New("no verified claims found in context")
	ErrInvalidClaims = errors.New("invalid claims type in context")
)

type ginMiddlewareConfig struct {
	errorHandler      func(*gin.Context, error)
	claimsKey         string
	proofKey          string
	middlewareOptions []dpopmiddleware.Option
}

// NewGinMiddleware builds an authenticating gin.HandlerFunc around the given
// token verifier. Rejected requests are answered by the configured error
// handler and the chain is aborted. Verifiers must be safe for concurrent
// use; validator.Verifier is.
func NewGinMiddleware(verifier core.TokenVerifier, opts ...Option) (gin.HandlerFunc, error) {
	config := &ginMiddlewareConfig{
		errorHandler: defaultGinErrorHandler,
		claimsKey:    DefaultClaimsKey,
		proofKey:     DefaultProofKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	middlewareOpts := append([]dpopmiddleware.Option{
		dpopmiddleware.WithVerifier(verifier),
		dpopmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			c, ok := r.Context().Value(gin.ContextKey).(*gin.Context)
			if !ok || c == nil {
				dpopmiddleware.DefaultErrorHandler(w, r, err)
				return
			}
			config.errorHandler(c, err)
		}),
	}, config.middlewareOptions...)

	middleware, err := dpopmiddleware.New(middlewareOpts...)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		// Make the gin context reachable from the request context so the
		// error handler bridge above can recover it.
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), gin.ContextKey, c))

		authenticated := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			authenticated = true
			c.Request = r

			if claims, err := core.GetClaims(r.Context()); err == nil {
				c.Set(config.claimsKey, claims)
			}
			if dpopCtx := core.GetDPoPContext(r.Context()); dpopCtx != nil {
				c.Set(config.proofKey, dpopCtx)
			}
			c.Next()
		}

		middleware.CheckAuth(handler).ServeHTTP(c.Writer, c.Request)

		if !authenticated {
			c.Abort()
		}
	}, nil
}

func defaultGinErrorHandler(c *gin.Context, err error) {
	authErr := core.AsAuthError(err)
	for key, value := range authErr.Headers {
		c.Header(key, value)
	}
	c.AbortWithStatusJSON(authErr.Status, gin.H{
		"error":             authErr.Code,
		"error_description": authErr.Description,
	})
}

// GetClaims returns the verified claims stored by the middleware.
func GetClaims(c *gin.Context, claimsKey string) (core.Claims, error) {
	if claimsKey == "" {
		claimsKey = DefaultClaimsKey
	}
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, ErrMissingClaims
	}
	claims, ok := value.(core.Claims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// GetDPoPContext returns the DPoP proof context for requests that
// authenticated with a DPoP-bound token.
func GetDPoPContext(c *gin.Context, proofKey string) (*core.DPoPContext, bool) {
	if proofKey == "" {
		proofKey = DefaultProofKey
	}
	value, exists := c.Get(proofKey)
	if !exists {
		return nil, false
	}
	dpopCtx, ok := value.(*core.DPoPContext)
	return dpopCtx, ok
}
