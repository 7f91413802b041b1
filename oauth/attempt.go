package oauth

import (
	"fmt"
	"time"
)

// DefaultAttemptTTL is how long an authorization attempt remains valid after
// it is created. A provider callback arriving after the TTL has elapsed is
// rejected and the user must start a new sign-in.
const DefaultAttemptTTL = 10 * time.Minute

// Attempt represents one in-flight authorization code flow: the PKCE
// verifier, the anti-CSRF state token the provider will echo back, and the
// time the attempt was created. At most one attempt is outstanding at a
// time; starting a new sign-in replaces any prior unconsumed attempt.
type Attempt struct {
	verifier  *CodeVerifier
	state     string
	createdAt time.Time

	nowFunc func() time.Time
}

// NewAttempt creates a new Attempt with a fresh verifier and state pair,
// stamped with the current time.
//
// Supported options: WithNow
func NewAttempt(opt ...Option) (*Attempt, error) {
	const op = "oauth.NewAttempt"
	opts := getAttemptOpts(opt...)
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate an attempt's verifier: %w", op, err)
	}
	state, err := NewCSRFState()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate an attempt's state: %w", op, err)
	}
	a := &Attempt{
		verifier: v,
		state:    state,
		nowFunc:  opts.withNowFunc,
	}
	a.createdAt = a.now()
	return a, nil
}

// RestoreAttempt rebuilds an Attempt from persisted values, so a callback
// arriving into a fresh process can still validate against the attempt that
// started in the previous one.
//
// Supported options: WithNow
func RestoreAttempt(verifier string, state string, createdAt time.Time, opt ...Option) (*Attempt, error) {
	const op = "oauth.RestoreAttempt"
	opts := getAttemptOpts(opt...)
	v, err := RestoreCodeVerifier(verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to restore an attempt's verifier: %w", op, err)
	}
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	if createdAt.IsZero() {
		return nil, fmt.Errorf("%s: created time is zero: %w", op, ErrInvalidParameter)
	}
	return &Attempt{
		verifier:  v,
		state:     state,
		createdAt: createdAt,
		nowFunc:   opts.withNowFunc,
	}, nil
}

// Verifier returns the attempt's PKCE verifier
func (a *Attempt) Verifier() *CodeVerifier { return a.verifier }

// State returns the attempt's anti-CSRF state token
func (a *Attempt) State() string { return a.state }

// CreatedAt returns the time the attempt was created
func (a *Attempt) CreatedAt() time.Time { return a.createdAt }

// IsExpired returns true once DefaultAttemptTTL has elapsed since the
// attempt was created. The boundary is exact: an attempt is valid strictly
// less than the TTL after creation.
func (a *Attempt) IsExpired() bool {
	return a.now().Sub(a.createdAt) >= DefaultAttemptTTL
}

func (a *Attempt) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now()
}

// attemptOptions is the set of available options for Attempt functions
type attemptOptions struct {
	withNowFunc func() time.Time
}

// attemptDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func attemptDefaults() attemptOptions {
	return attemptOptions{}
}

// getAttemptOpts gets the attempt defaults and applies the opt overrides
// passed in.
func getAttemptOpts(opt ...Option) attemptOptions {
	opts := attemptDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
