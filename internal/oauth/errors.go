package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch covers a missing, expired or different stored state
	ErrStateMismatch = errors.New("state mismatch")
	// ErrTokenExchangeFailed is returned when the token endpoint rejects the code
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrAuthorizationDenied is returned when the provider redirects back with an error
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrMissingCode is returned when the callback carries no authorization code
	ErrMissingCode = errors.New("missing authorization code")
)

// ProviderError is the error a provider reports on the callback
// (RFC 6749 section 4.1.2.1), e.g. error=access_denied
type ProviderError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Unwrap makes provider errors match ErrAuthorizationDenied
func (e *ProviderError) Unwrap() error {
	return ErrAuthorizationDenied
}
