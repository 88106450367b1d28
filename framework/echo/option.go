package dpopecho

import (
	"github.com/labstack/echo/v4"

	dpopmiddleware "github.com/proofbound/go-dpop-middleware"
)

// Option configures the Echo adapter.
type Option func(*echoMiddlewareConfig)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler func(echo.Context, error)) Option {
	return func(config *echoMiddlewareConfig) {
		config.errorHandler = handler
	}
}

// WithClaimsKey sets the Echo context key under which verified claims are
// stored.
func WithClaimsKey(key string) Option {
	return func(config *echoMiddlewareConfig) {
		config.claimsKey = key
	}
}

// WithProofKey sets the Echo context key under which the DPoP proof context
// is stored.
func WithProofKey(key string) Option {
	return func(config *echoMiddlewareConfig) {
		config.proofKey = key
	}
}

// WithMiddlewareOptions forwards options to the underlying middleware.
func WithMiddlewareOptions(opts ...dpopmiddleware.Option) Option {
	return func(config *echoMiddlewareConfig) {
		config.middlewareOptions = append(config.middlewareOptions, opts...)
	}
}
