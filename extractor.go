package dpopmiddleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/proofbound/go-dpop-middleware/core"
)

// Credential is the parsed content of an Authorization header. A zero
// Credential means the header was absent.
type Credential struct {
	Scheme core.Scheme
	Token  string
}

var (
	// ErrMalformedAuthHeader is returned when an Authorization header is
	// present but not of the form "<scheme> <credential>".
	ErrMalformedAuthHeader = errors.New("Authorization header format must be <scheme> <credential>")

	// ErrMultipleProofHeaders is returned when a request carries more than
	// one DPoP header.
	ErrMultipleProofHeaders = errors.New("multiple DPoP headers are not allowed")
)

// ParseAuthorization splits the Authorization header into scheme and
// credential. Scheme matching is case-insensitive; Bearer and DPoP are
// normalized to their canonical spellings and anything else is passed
// through for the core to reject as unsupported.
func ParseAuthorization(r *http.Request) (Credential, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Credential{}, nil
	}

	parts := strings.Fields(header)
	if len(parts) != 2 {
		return Credential{}, ErrMalformedAuthHeader
	}

	scheme := core.Scheme(parts[0])
	switch {
	case strings.EqualFold(parts[0], string(core.SchemeBearer)):
		scheme = core.SchemeBearer
	case strings.EqualFold(parts[0], string(core.SchemeDPoP)):
		scheme = core.SchemeDPoP
	}

	return Credential{Scheme: scheme, Token: parts[1]}, nil
}

// ProofHeader extracts the DPoP proof from the request. Absence is not an
// error (bearer flow); more than one DPoP header is.
func ProofHeader(r *http.Request) (string, error) {
	values := r.Header.Values("DPoP")
	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return values[0], nil
	default:
		return "", ErrMultipleProofHeaders
	}
}
