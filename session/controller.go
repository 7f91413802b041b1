package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/appauth-go/appauth/oauth"
)

// Status represents the controller's position in the sign-in state machine.
type Status int

const (
	// SignedOut means no valid credentials are held. Every failed attempt
	// returns here.
	SignedOut Status = iota

	// AuthorizationPending means an attempt is in flight and its
	// authorization URL has been launched.
	AuthorizationPending

	// Exchanging means a callback was received and the network exchange is
	// underway.
	Exchanging

	// SignedIn means valid credentials and a profile are held.
	SignedIn
)

// String returns a human readable status name
func (s Status) String() string {
	switch s {
	case SignedOut:
		return "signed-out"
	case AuthorizationPending:
		return "authorization-pending"
	case Exchanging:
		return "exchanging"
	case SignedIn:
		return "signed-in"
	default:
		return "unknown"
	}
}

// Controller drives one user's sign-in session: starting the authorization
// flow, validating the provider's callback, signing out, and broadcasting a
// live signed-in signal derived from token validity.
//
// A Controller holds one logical session: a second StartSignIn while an
// attempt is in flight replaces and invalidates the first. One mutex
// serializes every operation that reads or writes the in-flight attempt, so
// overlapping calls cannot interleave their store accesses.
type Controller struct {
	client   *oauth.Client
	attempts oauth.AttemptStore
	tokens   oauth.TokenStore
	signedIn *Signal[bool]
	logger   hclog.Logger

	mu     sync.Mutex
	status Status
}

// NewController creates a Controller over the given client and stores. The
// initial status and signal are derived from the persisted token's validity.
//
// Supported options: WithLogger
func NewController(client *oauth.Client, attempts oauth.AttemptStore, tokens oauth.TokenStore, opt ...Option) (*Controller, error) {
	const op = "session.NewController"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, oauth.ErrNilParameter)
	}
	if attempts == nil {
		return nil, fmt.Errorf("%s: attempt store is nil: %w", op, oauth.ErrNilParameter)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%s: token store is nil: %w", op, oauth.ErrNilParameter)
	}
	opts := getOpts(opt...)
	c := &Controller{
		client:   client,
		attempts: attempts,
		tokens:   tokens,
		logger:   opts.withLogger,
	}
	valid := tokens.Valid()
	if valid {
		c.status = SignedIn
	}
	c.signedIn = NewSignal(valid)
	return c, nil
}

// SignedIn returns the signed-in signal. Subscribers immediately receive the
// current value and then every change.
func (c *Controller) SignedIn() *Signal[bool] { return c.signedIn }

// Status returns the controller's current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StartSignIn begins a fresh authorization attempt, replacing any prior
// unconsumed one, launches the authorization URL in the user-agent, and
// returns the URL. On failure the attempt is cleared and the controller
// reverts to SignedOut.
func (c *Controller) StartSignIn(ctx context.Context) (string, error) {
	const op = "session.Controller.StartSignIn"
	c.mu.Lock()
	defer c.mu.Unlock()
	attempt, err := c.attempts.Begin()
	if err != nil {
		c.status = SignedOut
		return "", fmt.Errorf("%s: unable to begin attempt: %w", op, err)
	}
	authURL, err := c.client.AuthURL(attempt.Verifier(), attempt.State())
	if err != nil {
		c.abandonAttempt()
		return "", fmt.Errorf("%s: unable to build authorization url: %w", op, err)
	}
	if err := c.client.Launch(authURL); err != nil {
		c.abandonAttempt()
		return "", fmt.Errorf("%s: unable to launch authorization url: %w", op, err)
	}
	c.status = AuthorizationPending
	c.logger.Info("sign-in started")
	return authURL, nil
}

// HandleCallback validates the redirect URI the provider delivered,
// exchanges its authorization code for tokens, fetches the user's profile,
// and raises the signed-in signal.
//
// Failure semantics, in evaluation order:
//   - an error query parameter fails with ErrProviderDenied and consumes
//     the attempt;
//   - a missing code or state fails with ErrMalformedCallback and leaves
//     the attempt in place, so a delayed duplicate delivery can still be
//     retried within the attempt's TTL;
//   - a missing or expired attempt fails with ErrAttemptExpired;
//   - a state value that differs from the attempt's fails with
//     ErrStateMismatch and consumes the attempt;
//   - an exchange failure is propagated and consumes the attempt;
//   - a profile fetch failure is propagated and consumes the attempt; the
//     exchanged tokens remain persisted, but the controller still returns
//     to SignedOut because a profile is required before the caller may
//     treat the user as authenticated.
func (c *Controller) HandleCallback(ctx context.Context, redirectURI string) (*oauth.Profile, error) {
	const op = "session.Controller.HandleCallback"
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(redirectURI)
	if err != nil {
		c.status = SignedOut
		return nil, fmt.Errorf("%s: unable to parse redirect uri: %w", op, oauth.ErrMalformedCallback)
	}
	q := u.Query()
	if errParam := q.Get("error"); errParam != "" {
		c.abandonAttempt()
		return nil, fmt.Errorf("%s: provider returned %q: %w", op, errParam, oauth.ErrProviderDenied)
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		// Deliberately leave the attempt in place for a retry within its
		// TTL.
		c.status = SignedOut
		return nil, fmt.Errorf("%s: %w", op, oauth.ErrMalformedCallback)
	}

	attempt, err := c.attempts.Current()
	if err != nil {
		c.abandonAttempt()
		return nil, fmt.Errorf("%s: unable to load attempt: %w", op, err)
	}
	if attempt == nil || attempt.IsExpired() {
		c.abandonAttempt()
		return nil, fmt.Errorf("%s: %w", op, oauth.ErrAttemptExpired)
	}
	if state != attempt.State() {
		c.abandonAttempt()
		c.logger.Warn("callback state mismatch")
		return nil, fmt.Errorf("%s: %w", op, oauth.ErrStateMismatch)
	}

	c.status = Exchanging
	if _, err := c.client.Exchange(ctx, code, attempt.Verifier()); err != nil {
		c.abandonAttempt()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	profile, err := c.client.UserInfo(ctx)
	if err != nil {
		c.abandonAttempt()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := c.attempts.Clear(); err != nil {
		c.logger.Error("unable to clear consumed attempt", "error", err)
	}
	c.status = SignedIn
	c.signedIn.Set(true)
	c.logger.Info("sign-in completed")
	return profile, nil
}

// SignOut clears the persisted credentials and any in-flight attempt, and
// lowers the signed-in signal. Clearing is best-effort-complete: every
// sub-clear is attempted even when one fails, and the failures are returned
// together.
func (c *Controller) SignOut() error {
	const op = "session.Controller.SignOut"
	c.mu.Lock()
	defer c.mu.Unlock()
	var result *multierror.Error
	if err := c.tokens.Clear(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: unable to clear tokens: %w", op, err))
	}
	if err := c.attempts.Clear(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: unable to clear attempt: %w", op, err))
	}
	c.status = SignedOut
	c.signedIn.Set(false)
	c.logger.Info("signed out")
	return result.ErrorOrNil()
}

// RefreshProfile re-fetches and re-caches the signed-in user's profile. It
// fails with ErrNotAuthenticated unless a valid token is held.
func (c *Controller) RefreshProfile(ctx context.Context) (*oauth.Profile, error) {
	const op = "session.Controller.RefreshProfile"
	if !c.tokens.Valid() {
		return nil, fmt.Errorf("%s: %w", op, oauth.ErrNotAuthenticated)
	}
	profile, err := c.client.UserInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return profile, nil
}

// StoredProfile returns the cached profile, or nil when none is cached.
func (c *Controller) StoredProfile() (*oauth.Profile, error) {
	return c.tokens.LoadProfile()
}

// IsSignedIn synchronously re-checks token validity and resynchronizes the
// signed-in signal and status with it.
func (c *Controller) IsSignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	valid := c.tokens.Valid()
	switch {
	case valid && c.status != SignedIn:
		c.status = SignedIn
	case !valid && c.status == SignedIn:
		c.status = SignedOut
	}
	c.signedIn.Set(valid)
	return valid
}

// abandonAttempt clears the in-flight attempt and returns to SignedOut.
// Callers must hold c.mu.
func (c *Controller) abandonAttempt() {
	if err := c.attempts.Clear(); err != nil {
		c.logger.Error("unable to clear attempt", "error", err)
	}
	c.status = SignedOut
}

// options is the set of available options for session functions
type options struct {
	withLogger hclog.Logger
}

func getDefaults() options {
	return options{
		withLogger: hclog.NewNullLogger(),
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// Option defines the session package's functional options type
type Option func(*options)

// WithLogger provides an optional hclog.Logger for the controller
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}
