// Package oauth implements the client side of the OAuth 2.0 Authorization
// Code flow with PKCE (RFC 7636) against a single configured provider. It
// supports building authorization URLs, launching them in the user's
// browser, exchanging authorization codes for tokens, refreshing tokens, and
// fetching the signed-in user's profile.
//
// The package owns the protocol types (CodeVerifier, Attempt, Token,
// Profile) and the store contracts (AttemptStore, TokenStore) that
// persistence layers implement.  See the session package for the state
// machine that orchestrates a complete sign-in.
package oauth
