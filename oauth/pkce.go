package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ChallengeMethod represents PKCE code challenge methods as defined by
// RFC 7636.
type ChallengeMethod string

const (
	// S256 is the SHA-256 based PKCE challenge method and the only method
	// this package supports. RFC 7636's "plain" method provides no
	// protection against code interception and is deliberately omitted.
	S256 ChallengeMethod = "S256"

	// verifierLen is the length of generated code verifiers. RFC 7636
	// allows 43..128; we always generate the maximum.
	verifierLen = 128

	// csrfStateLen is the length of generated anti-CSRF state tokens.
	csrfStateLen = 32

	// unreserved is RFC 3986's unreserved character set, which RFC 7636
	// requires for code verifiers.
	unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// RedactedCodeVerifier is the redacted string or json for a PKCE verifier.
const RedactedCodeVerifier = "[REDACTED: code verifier]"

// CodeVerifier represents an OAuth PKCE code verifier and its derived
// challenge, which bind an authorization code to the client that requested
// it. A verifier is generated fresh per sign-in attempt and must never be
// sent to the provider until the code exchange.
type CodeVerifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// NewCodeVerifier creates a new CodeVerifier: a 128 character random string
// drawn from the unreserved alphabet using a cryptographically secure random
// source, with its S256 challenge computed eagerly.
func NewCodeVerifier() (*CodeVerifier, error) {
	const op = "oauth.NewCodeVerifier"
	data, err := randomString(verifierLen)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate verifier: %w", op, err)
	}
	v := &CodeVerifier{
		verifier: data,
		method:   S256,
	}
	if v.challenge, err = CreateCodeChallenge(v.method, v); err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

// RestoreCodeVerifier rebuilds a CodeVerifier from a verifier string
// previously persisted by an attempt store. The verifier must be 43..128
// characters from the unreserved alphabet.
func RestoreCodeVerifier(verifier string) (*CodeVerifier, error) {
	const op = "oauth.RestoreCodeVerifier"
	if l := len(verifier); l < 43 || l > 128 {
		return nil, fmt.Errorf("%s: verifier length %d is outside 43..128: %w", op, l, ErrInvalidParameter)
	}
	for _, r := range verifier {
		if !strings.ContainsRune(unreserved, r) {
			return nil, fmt.Errorf("%s: verifier contains a character outside the unreserved alphabet: %w", op, ErrInvalidParameter)
		}
	}
	v := &CodeVerifier{
		verifier: verifier,
		method:   S256,
	}
	challenge, err := CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = challenge
	return v, nil
}

// Verifier returns the verifier string
func (v *CodeVerifier) Verifier() string { return v.verifier }

// Challenge returns the verifier's derived challenge
func (v *CodeVerifier) Challenge() string { return v.challenge }

// Method returns the verifier's challenge method
func (v *CodeVerifier) Method() ChallengeMethod { return v.method }

// Copy a CodeVerifier
func (v *CodeVerifier) Copy() *CodeVerifier {
	return &CodeVerifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// String will redact the verifier
func (v *CodeVerifier) String() string { return RedactedCodeVerifier }

// MarshalJSON will redact the verifier
func (v *CodeVerifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedCodeVerifier)
}

// CreateCodeChallenge creates a code challenge for the verifier using the
// given method. It is deterministic: the same verifier always produces the
// same challenge. Only the S256 method is supported.
func CreateCodeChallenge(m ChallengeMethod, v *CodeVerifier) (string, error) {
	const op = "oauth.CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	if m != S256 {
		return "", fmt.Errorf("%s: %q: %w", op, m, ErrUnsupportedChallengeMethod)
	}
	sum := sha256.Sum256([]byte(v.verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// NewCSRFState generates a new anti-CSRF state token: a 32 character random
// string from the unreserved alphabet, drawn independently of any verifier.
// The token is echoed back by the provider and checked on the callback.
func NewCSRFState() (string, error) {
	const op = "oauth.NewCSRFState"
	s, err := randomString(csrfStateLen)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	return s, nil
}

// randomString draws n characters uniformly from the unreserved alphabet
// using crypto/rand. rand.Int performs the rejection sampling needed to
// avoid modulo bias.
func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(unreserved)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRandomSourceFailed, err)
		}
		b.WriteByte(unreserved[idx.Int64()])
	}
	return b.String(), nil
}
