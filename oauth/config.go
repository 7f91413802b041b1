package oauth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-cleanhttp"
)

// Google's OAuth 2.0 endpoint set, used by default when a Config doesn't
// name its own endpoints.
const (
	GoogleAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// DefaultHTTPTimeout bounds every request to the provider. The provider
// defines no timeout of its own, so the client enforces this one.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultScopes are the scopes requested when a Config doesn't name its own.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Config represents the configuration for the authorization code flow
// against a single provider.
type Config struct {
	// ClientID is the relying party id
	ClientID string `env:"OAUTH_CLIENT_ID"`

	// RedirectURL is the fixed redirect URI registered with the provider,
	// typically a custom app scheme like "com.example.app:/oauth2redirect"
	// or a loopback http URL.
	RedirectURL string `env:"OAUTH_REDIRECT_URL"`

	// AuthEndpoint is the provider's authorization endpoint
	AuthEndpoint string `env:"OAUTH_AUTH_ENDPOINT"`

	// TokenEndpoint is the provider's token endpoint
	TokenEndpoint string `env:"OAUTH_TOKEN_ENDPOINT"`

	// UserInfoEndpoint is the provider's userinfo endpoint
	UserInfoEndpoint string `env:"OAUTH_USERINFO_ENDPOINT"`

	// Scopes is the list of scopes to request
	Scopes []string `env:"OAUTH_SCOPES" envSeparator:" "`

	// ProviderCA is an optional CA cert PEM to use when sending requests to
	// the provider.
	ProviderCA string `env:"OAUTH_PROVIDER_CA"`

	// Timeout bounds each request to the provider
	Timeout time.Duration `env:"OAUTH_HTTP_TIMEOUT"`
}

// NewConfig composes a new config for a provider, defaulting to Google's
// endpoint set and scopes.
//
// Supported options: WithScopes, WithEndpoints, WithProviderCA, WithTimeout
func NewConfig(clientID string, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oauth.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:         clientID,
		RedirectURL:      redirectURL,
		AuthEndpoint:     opts.withAuthEndpoint,
		TokenEndpoint:    opts.withTokenEndpoint,
		UserInfoEndpoint: opts.withUserInfoEndpoint,
		Scopes:           opts.withScopes,
		ProviderCA:       opts.withProviderCA,
		Timeout:          opts.withTimeout,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// ConfigFromEnv builds a config from OAUTH_* environment variables,
// defaulting anything unset the same way NewConfig does.
func ConfigFromEnv() (*Config, error) {
	const op = "oauth.ConfigFromEnv"
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("%s: unable to parse environment: %w", op, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.AuthEndpoint == "" {
		c.AuthEndpoint = GoogleAuthEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = GoogleTokenEndpoint
	}
	if c.UserInfoEndpoint == "" {
		c.UserInfoEndpoint = GoogleUserInfoEndpoint
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes()
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultHTTPTimeout
	}
}

// Validate the config. Among other validations, it verifies the endpoints
// parse as URLs, but it doesn't verify they are reachable.
func (c *Config) Validate() error {
	const op = "oauth.Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	for _, endpoint := range []struct {
		name  string
		value string
	}{
		{"auth endpoint", c.AuthEndpoint},
		{"token endpoint", c.TokenEndpoint},
		{"userinfo endpoint", c.UserInfoEndpoint},
	} {
		if endpoint.value == "" {
			return fmt.Errorf("%s: %s is empty: %w", op, endpoint.name, ErrInvalidParameter)
		}
		u, err := url.Parse(endpoint.value)
		if err != nil {
			return fmt.Errorf("%s: %s %s is invalid: %w", op, endpoint.name, endpoint.value, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("%s: %s %s scheme is not http or https: %w", op, endpoint.name, endpoint.value, ErrInvalidParameter)
		}
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("%s: scopes are empty: %w", op, ErrInvalidParameter)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s: timeout is negative: %w", op, ErrInvalidParameter)
	}
	return nil
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured. The client uses the optional ProviderCA PEM if
// provided, otherwise the installed system CA chain, and enforces the
// configured timeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "oauth.Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withScopes           []string
	withAuthEndpoint     string
	withTokenEndpoint    string
	withUserInfoEndpoint string
	withProviderCA       string
	withTimeout          time.Duration
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes:           DefaultScopes(),
		withAuthEndpoint:     GoogleAuthEndpoint,
		withTokenEndpoint:    GoogleTokenEndpoint,
		withUserInfoEndpoint: GoogleUserInfoEndpoint,
		withTimeout:          DefaultHTTPTimeout,
	}
}

// getConfigOpts gets the config defaults and applies the opt overrides
// passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes for the config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && len(scopes) > 0 {
			o.withScopes = scopes
		}
	}
}

// WithEndpoints provides an optional endpoint set for a provider other than
// the Google default.
func WithEndpoints(auth, token, userInfo string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthEndpoint = auth
			o.withTokenEndpoint = token
			o.withUserInfoEndpoint = userInfo
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for the config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithTimeout provides an optional HTTP timeout for the config
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTimeout = d
		}
	}
}
