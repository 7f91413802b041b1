package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Client performs the provider-facing half of the authorization code flow:
// building the authorization URL, launching it, exchanging an authorization
// code for tokens, refreshing tokens, and fetching the user's profile. A
// successful exchange or fetch persists its result through the TokenStore as
// a side effect.
//
// Network calls honor the caller's context and the config's timeout; they
// are never retried by the Client.
type Client struct {
	config   *Config
	tokens   TokenStore
	http     *http.Client
	launcher Launcher
	logger   hclog.Logger
}

// NewClient creates a Client for the configured provider, persisting through
// the given token store.
//
// Supported options: WithLogger, WithLauncher, WithHTTPClient
func NewClient(c *Config, tokens TokenStore, opt ...Option) (*Client, error) {
	const op = "oauth.NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%s: token store is nil: %w", op, ErrNilParameter)
	}
	opts := getClientOpts(opt...)
	httpClient := opts.withHTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = c.HTTPClient()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	return &Client{
		config:   c,
		tokens:   tokens,
		http:     httpClient,
		launcher: opts.withLauncher,
		logger:   opts.withLogger,
	}, nil
}

// oauth2Config composes the x/oauth2 config for the provider.
func (c *Client) oauth2Config() oauth2.Config {
	return oauth2.Config{
		ClientID:    c.config.ClientID,
		RedirectURL: c.config.RedirectURL,
		Scopes:      c.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.config.AuthEndpoint,
			TokenURL: c.config.TokenEndpoint,
		},
	}
}

// httpContext returns a ctx carrying the client's http.Client, so the
// x/oauth2 package uses our transport, CA pool, and timeout.
func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// AuthURL deterministically composes the provider's authorization URL for
// the given verifier and anti-CSRF state: client id, redirect URI,
// response_type=code, the configured scopes, access_type=offline, the state,
// and the verifier's S256 challenge. No network call is made.
func (c *Client) AuthURL(verifier *CodeVerifier, csrfState string) (string, error) {
	const op = "oauth.Client.AuthURL"
	if verifier == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	if csrfState == "" {
		return "", fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	ocfg := c.oauth2Config()
	return ocfg.AuthCodeURL(
		csrfState,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier.Verifier()),
	), nil
}

// Launch hands the authorization URL to the configured Launcher. The call is
// fire-and-forget: success means the request to open a user-agent was
// dispatched.
func (c *Client) Launch(url string) error {
	const op = "oauth.Client.Launch"
	if c.launcher == nil {
		return fmt.Errorf("%s: no launcher configured: %w", op, ErrNilParameter)
	}
	if url == "" {
		return fmt.Errorf("%s: url is empty: %w", op, ErrInvalidParameter)
	}
	return c.launcher.Open(url)
}

// Exchange performs the authorization_code grant at the token endpoint,
// proving possession of the verifier. On success the Token (with its
// absolute Expiry computed at receipt) is persisted through the token store
// and returned. A non-200 response with an OAuth error body fails with a
// *ProviderError; network failures fail with ErrTransport and are not
// retried.
func (c *Client) Exchange(ctx context.Context, code string, verifier *CodeVerifier) (*Token, error) {
	const op = "oauth.Client.Exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	c.logger.Debug("exchanging authorization code for tokens")
	ocfg := c.oauth2Config()
	tok, err := ocfg.Exchange(c.httpContext(ctx), code, oauth2.VerifierOption(verifier.Verifier()))
	if err != nil {
		if pErr := asProviderError(err); pErr != nil {
			return nil, fmt.Errorf("%s: token exchange rejected: %w", op, pErr)
		}
		return nil, fmt.Errorf("%s: token exchange: %w: %w", op, ErrTransport, err)
	}
	t := tokenFromOauth2(tok)
	if err := c.tokens.Save(t); err != nil {
		return nil, fmt.Errorf("%s: unable to persist tokens: %w", op, err)
	}
	c.logger.Debug("token exchange succeeded", "expiry", t.Expiry)
	return t, nil
}

// Refresh performs the refresh_token grant at the token endpoint using the
// persisted refresh token, persisting and returning the rotated record. It
// fails with ErrNotAuthenticated when no refresh token is stored. When the
// provider withholds a new refresh token the previous one is preserved.
func (c *Client) Refresh(ctx context.Context) (*Token, error) {
	const op = "oauth.Client.Refresh"
	stored, err := c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to load tokens: %w", op, err)
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, fmt.Errorf("%s: no refresh token available: %w", op, ErrNotAuthenticated)
	}
	c.logger.Debug("refreshing access token")
	ocfg := c.oauth2Config()
	src := ocfg.TokenSource(c.httpContext(ctx), &oauth2.Token{
		RefreshToken: string(stored.RefreshToken),
	})
	tok, err := src.Token()
	if err != nil {
		if pErr := asProviderError(err); pErr != nil {
			return nil, fmt.Errorf("%s: token refresh rejected: %w", op, pErr)
		}
		return nil, fmt.Errorf("%s: token refresh: %w: %w", op, ErrTransport, err)
	}
	t := tokenFromOauth2(tok)
	if t.RefreshToken == "" {
		t.RefreshToken = stored.RefreshToken
	}
	if err := c.tokens.Save(t); err != nil {
		return nil, fmt.Errorf("%s: unable to persist tokens: %w", op, err)
	}
	return t, nil
}

// UserInfo fetches the signed-in user's profile from the userinfo endpoint
// with the persisted bearer token, persisting and returning it. It fails
// with ErrNotAuthenticated unless a currently valid access token is stored.
func (c *Client) UserInfo(ctx context.Context) (*Profile, error) {
	const op = "oauth.Client.UserInfo"
	stored, err := c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to load tokens: %w", op, err)
	}
	if !stored.Valid() {
		return nil, fmt.Errorf("%s: no valid access token: %w", op, ErrNotAuthenticated)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(stored.AccessToken))
	c.logger.Debug("fetching user profile")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: userinfo request: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading userinfo response: %w: %w", op, ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		pErr := &ProviderError{
			Code:        oauthErr.Error,
			Description: oauthErr.Description,
			Status:      resp.StatusCode,
		}
		return nil, fmt.Errorf("%s: userinfo rejected: %w", op, pErr)
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%s: unable to parse userinfo response: %w", op, err)
	}
	if err := c.tokens.SaveProfile(&p); err != nil {
		return nil, fmt.Errorf("%s: unable to persist profile: %w", op, err)
	}
	return &p, nil
}

// tokenFromOauth2 converts an x/oauth2 token, which already carries the
// absolute expiry computed from expires_in at receipt time.
func tokenFromOauth2(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  AccessToken(tok.AccessToken),
		RefreshToken: RefreshToken(tok.RefreshToken),
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		t.Scope = scope
	}
	if t.Expiry.IsZero() && tok.ExpiresIn > 0 {
		t.Expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return t
}

// asProviderError maps an x/oauth2 retrieve error (the provider responded
// with a non-200 status) to a *ProviderError. It returns nil for transport
// level failures, which never reached the provider.
func asProviderError(err error) *ProviderError {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return nil
	}
	pErr := &ProviderError{
		Code:        rErr.ErrorCode,
		Description: rErr.ErrorDescription,
	}
	if rErr.Response != nil {
		pErr.Status = rErr.Response.StatusCode
	}
	return pErr
}

// clientOptions is the set of available options for Client functions
type clientOptions struct {
	withLogger     hclog.Logger
	withLauncher   Launcher
	withHTTPClient *http.Client
}

// clientDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withLogger:   hclog.NewNullLogger(),
		withLauncher: BrowserLauncher{},
	}
}

// getClientOpts gets the client defaults and applies the opt overrides
// passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional hclog.Logger for the client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithLauncher provides an optional Launcher used to open authorization
// URLs in a user-agent.
func WithLauncher(l Launcher) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLauncher = l
		}
	}
}

// WithHTTPClient provides an optional http client, overriding the one the
// config would build.
func WithHTTPClient(h *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && h != nil {
			o.withHTTPClient = h
		}
	}
}
