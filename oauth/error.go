package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrRandomSourceFailed         = errors.New("secure random source failed")
	ErrUnsupportedChallengeMethod = errors.New("unsupported challenge method")
	ErrMalformedCallback          = errors.New("callback is missing code or state")
	ErrProviderDenied             = errors.New("provider denied authorization")
	ErrAttemptExpired             = errors.New("authorization attempt is expired or missing")
	ErrStateMismatch              = errors.New("callback state does not match the attempt")
	ErrNotAuthenticated           = errors.New("not authenticated")
	ErrTransport                  = errors.New("transport failure")
)

// ProviderError represents a structured OAuth error body ({error,
// error_description?}) returned by the provider's token or userinfo endpoint
// with a non-200 status.
type ProviderError struct {
	// Code is the OAuth "error" field (for example "invalid_grant")
	Code string

	// Description is the optional "error_description" field
	Description string

	// Status is the HTTP status code of the response
	Status int
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned %q (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("provider returned %q: %s (status %d)", e.Code, e.Description, e.Status)
}
