// appauth provides the packages needed to sign a native or desktop
// application's user in with the OAuth 2.0 Authorization Code flow and PKCE:
// building authorization URLs, validating provider callbacks, exchanging
// authorization codes for tokens, and persisting credentials encrypted at
// rest.
//
// See README.md
package appauth
