package core

import (
	"context"
	"errors"
)

// contextKey is unexported so only this package can create collisions-free
// context keys.
type contextKey int

const (
	claimsKey contextKey = iota
	dpopKey
)

// ErrClaimsNotFound is returned when no claims are stored in the context.
var ErrClaimsNotFound = errors.New("claims not found in context")

// SetClaims stores verified claims in the context. Adapters call this after
// a successful VerifyRequest.
func SetClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims retrieves the verified claims from the context.
func GetClaims(ctx context.Context) (Claims, error) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return nil, ErrClaimsNotFound
	}
	return claims, nil
}

// HasClaims reports whether verified claims are stored in the context.
func HasClaims(ctx context.Context) bool {
	_, ok := ctx.Value(claimsKey).(Claims)
	return ok
}

// SetDPoPContext stores the validated proof details in the context.
func SetDPoPContext(ctx context.Context, dc *DPoPContext) context.Context {
	return context.WithValue(ctx, dpopKey, dc)
}

// GetDPoPContext returns the validated proof details, or nil for bearer
// requests.
func GetDPoPContext(ctx context.Context) *DPoPContext {
	dc, _ := ctx.Value(dpopKey).(*DPoPContext)
	return dc
}

// HasDPoPContext reports whether the request was authenticated with DPoP.
func HasDPoPContext(ctx context.Context) bool {
	return GetDPoPContext(ctx) != nil
}
