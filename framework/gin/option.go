package dpopgin

import (
	"github.com/gin-gonic/gin"

	dpopmiddleware "github.com/proofbound/go-dpop-middleware"
)

// Option configures the Gin adapter.
type Option func(*ginMiddlewareConfig)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(config *ginMiddlewareConfig) {
		config.errorHandler = handler
	}
}

// WithClaimsKey sets the Gin context key under which verified claims are
// stored.
func WithClaimsKey(key string) Option {
	return func(config *ginMiddlewareConfig) {
		config.claimsKey = key
	}
}

// WithProofKey sets the Gin context key under which the DPoP proof context
// is stored.
func WithProofKey(key string) Option {
	return func(config *ginMiddlewareConfig) {
		config.proofKey = key
	}
}

// WithMiddlewareOptions forwards options to the underlying middleware, for
// example dpopmiddleware.WithDPoPMode or dpopmiddleware.WithRequiredScopes.
func WithMiddlewareOptions(opts ...dpopmiddleware.Option) Option {
	return func(config *ginMiddlewareConfig) {
		config.middlewareOptions = append(config.middlewareOptions, opts...)
	}
}
