package dpopmiddleware

import (
	"encoding/json"
	"net/http"

	"github.com/proofbound/go-dpop-middleware/core"
)

// ErrorHandler writes the rejection response for a failed authentication.
// The err is always convertible with core.AsAuthError; custom handlers that
// ignore the AuthError's status and code risk breaking the wire contract.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// errorBody is the structured rejection body: a machine-readable OAuth2/DPoP
// code and a human-readable description.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// DefaultErrorHandler writes the AuthError as an {error, error_description}
// JSON body with the error's status code and challenge headers.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	authErr := core.AsAuthError(err)

	for key, value := range authErr.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)

	_ = json.NewEncoder(w).Encode(errorBody{
		Error:            authErr.Code,
		ErrorDescription: authErr.Description,
	})
}
