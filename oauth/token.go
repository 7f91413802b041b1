package oauth

import (
	"encoding/json"
	"time"
)

const (
	// RedactedAccessToken is the redacted string or json for an access token
	RedactedAccessToken = "[REDACTED: access token]"

	// RedactedRefreshToken is the redacted string or json for a refresh token
	RedactedRefreshToken = "[REDACTED: refresh token]"
)

// AccessToken is an opaque bearer token presented in an Authorization header
// to access protected resources.
type AccessToken string

// String will redact the token
func (t AccessToken) String() string { return RedactedAccessToken }

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an opaque token used to obtain new access tokens. Some
// providers withhold it, in which case it is empty.
type RefreshToken string

// String will redact the token
func (t RefreshToken) String() string { return RedactedRefreshToken }

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// Token represents the credentials obtained from a successful code exchange.
// AccessToken and Expiry are always written together; a Token is valid iff
// the access token is non-empty and the current time is before Expiry.
type Token struct {
	AccessToken  AccessToken
	RefreshToken RefreshToken
	TokenType    string
	Scope        string

	// Expiry is the absolute expiration time: the time the token response
	// was received plus its expires_in seconds.
	Expiry time.Time
}

// Expired returns true if the token's Expiry has passed. A zero Expiry
// never expires.
//
// Supported options: WithExpirySkew, WithNow
func (t *Token) Expired(opt ...Option) bool {
	opts := getTokenOpts(opt...)
	if t.Expiry.IsZero() {
		return false
	}
	now := time.Now
	if opts.withNowFunc != nil {
		now = opts.withNowFunc
	}
	return !t.Expiry.Round(0).After(now().Add(opts.withExpirySkew))
}

// Valid returns true if the token has a non-empty access token which has not
// expired.
//
// Supported options: WithExpirySkew, WithNow
func (t *Token) Valid(opt ...Option) bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired(opt...)
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in.
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
