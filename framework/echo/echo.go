// Package dpopecho adapts the middleware to Echo handler chains.
package dpopecho

import (
	"net/http"

	"github.com/labstack/echo/v4"

	dpopmiddleware "github.com/proofbound/go-dpop-middleware"
	"github.com/proofbound/go-dpop-middleware/core"
)

const (
	DefaultClaimsKey = "auth.claims"
	DefaultProofKey  = "auth.dpop"
)

type echoMiddlewareConfig struct {
	errorHandler      func(echo.Context, error)
	claimsKey         string
	proofKey          string
	middlewareOptions []dpopmiddleware.Option
}

// NewEchoMiddleware builds an authenticating echo.MiddlewareFunc around the
// given token verifier. Rejected requests are answered by the configured
// error handler and never reach the wrapped handler.
func NewEchoMiddleware(verifier core.TokenVerifier, opts ...Option) (echo.MiddlewareFunc, error) {
	config := &echoMiddlewareConfig{
		errorHandler: DefaultEchoErrorHandler,
		claimsKey:    DefaultClaimsKey,
		proofKey:     DefaultProofKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	middlewareOpts := append([]dpopmiddleware.Option{
		dpopmiddleware.WithVerifier(verifier),
		dpopmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			e := echo.New()
			c := e.NewContext(r, w)
			config.errorHandler(c, err)
		}),
	}, config.middlewareOptions...)

	middleware, err := dpopmiddleware.New(middlewareOpts...)
	if err != nil {
		return nil, err
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var nextErr error
			authenticated := false
			var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
				authenticated = true
				c.SetRequest(r)

				if claims, err := core.GetClaims(r.Context()); err == nil {
					c.Set(config.claimsKey, claims)
				}
				if dpopCtx := core.GetDPoPContext(r.Context()); dpopCtx != nil {
					c.Set(config.proofKey, dpopCtx)
				}
				nextErr = next(c)
			}

			middleware.CheckAuth(handler).ServeHTTP(c.Response(), c.Request())
			if !authenticated {
				return nil
			}
			return nextErr
		}
	}, nil
}

// DefaultEchoErrorHandler writes the structured error body through the Echo
// context.
func DefaultEchoErrorHandler(c echo.Context, err error) {
	authErr := core.AsAuthError(err)
	for key, value := range authErr.Headers {
		c.Response().Header().Set(key, value)
	}
	_ = c.JSON(authErr.Status, map[string]string{
		"error":             authErr.Code,
		"error_description": authErr.Description,
	})
}

// GetClaims extracts the verified claims from the Echo context.
func GetClaims(c echo.Context, claimsKey string) (core.Claims, bool) {
	if claimsKey == "" {
		claimsKey = DefaultClaimsKey
	}
	claims, ok := c.Get(claimsKey).(core.Claims)
	return claims, ok
}

// GetDPoPContext extracts the DPoP proof context from the Echo context.
func GetDPoPContext(c echo.Context, proofKey string) (*core.DPoPContext, bool) {
	if proofKey == "" {
		proofKey = DefaultProofKey
	}
	dpopCtx, ok := c.Get(proofKey).(*core.DPoPContext)
	return dpopCtx, ok
}
