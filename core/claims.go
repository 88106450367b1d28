package core

import "strings"

// Claims is the decoded claim set of a verified access token. Verifiers
// return it once per request; it is never mutated afterwards.
type Claims map[string]any

// Subject returns the sub claim, or the empty string.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// Issuer returns the iss claim, or the empty string.
func (c Claims) Issuer() string {
	s, _ := c["iss"].(string)
	return s
}

// Scope returns the raw space-delimited scope claim.
func (c Claims) Scope() string {
	s, _ := c["scope"].(string)
	return s
}

// HasAllScopes reports whether every required scope appears in the
// space-delimited scope claim.
func (c Claims) HasAllScopes(required ...string) bool {
	scope := c.Scope()
	if scope == "" {
		return len(required) == 0
	}
	granted := strings.Fields(scope)
	for _, want := range required {
		found := false
		for _, have := range granted {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ConfirmationJKT returns the cnf.jkt claim for a DPoP-bound token, or the
// empty string when the token carries no confirmation.
func (c Claims) ConfirmationJKT() string {
	cnf, ok := c["cnf"].(map[string]any)
	if !ok {
		return ""
	}
	jkt, _ := cnf["jkt"].(string)
	return jkt
}

// HasConfirmation reports whether the token is DPoP-bound.
func (c Claims) HasConfirmation() bool {
	return c.ConfirmationJKT() != ""
}
