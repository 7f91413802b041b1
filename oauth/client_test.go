package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenStore is a minimal in-memory TokenStore for client tests.
type testTokenStore struct {
	mu      sync.Mutex
	token   *Token
	profile *Profile
}

func (s *testTokenStore) Save(t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
	return nil
}

func (s *testTokenStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *testTokenStore) SaveProfile(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	return nil
}

func (s *testTokenStore) LoadProfile() (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, nil
}

func (s *testTokenStore) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.Valid()
}

func (s *testTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.profile = nil, nil
	return nil
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	t.Run("valid", func(t *testing.T) {
		require := require.New(t)
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
		require.NoError(err)
		require.NotNil(c)
	})
	t.Run("nil-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewClient(nil, &testTokenStore{})
		require.Error(err)
		assert.True(errors.Is(err, ErrNilParameter))
	})
	t.Run("nil-token-store", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), nil)
		require.Error(err)
		assert.True(errors.Is(err, ErrNilParameter))
	})
}

func TestClient_AuthURL(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
	require.NoError(t, err)

	t.Run("parameters", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		state, err := NewCSRFState()
		require.NoError(err)

		rawURL, err := c.AuthURL(v, state)
		require.NoError(err)
		u, err := url.Parse(rawURL)
		require.NoError(err)
		q := u.Query()
		assert.Equal("test-client-id", q.Get("client_id"))
		assert.Equal("http://localhost/callback", q.Get("redirect_uri"))
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("openid email profile", q.Get("scope"))
		assert.Equal("offline", q.Get("access_type"))
		assert.Equal(state, q.Get("state"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.Equal(v.Challenge(), q.Get("code_challenge"))
	})
	t.Run("nil-verifier", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := c.AuthURL(nil, "state")
		require.Error(err)
		assert.True(errors.Is(err, ErrNilParameter))
	})
	t.Run("empty-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		_, err = c.AuthURL(v, "")
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestClient_Exchange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success-persists-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		v, err := NewCodeVerifier()
		require.NoError(err)
		tp.SetExpectedVerifier(v)

		before := time.Now()
		tok, err := c.Exchange(ctx, "test-authorization-code", v)
		require.NoError(err)
		require.NotNil(tok)
		assert.Equal(AccessToken("test-access-token"), tok.AccessToken)
		assert.Equal(RefreshToken("test-refresh-token"), tok.RefreshToken)
		assert.Equal("Bearer", tok.TokenType)
		assert.Equal("openid email profile", tok.Scope)
		assert.True(tok.Expiry.After(before.Add(59 * time.Minute)))
		assert.True(tok.Valid())

		stored, err := store.Load()
		require.NoError(err)
		assert.Equal(tok, stored)
	})
	t.Run("verifier-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		expected, err := NewCodeVerifier()
		require.NoError(err)
		tp.SetExpectedVerifier(expected)
		other, err := NewCodeVerifier()
		require.NoError(err)

		_, err = c.Exchange(ctx, "test-authorization-code", other)
		require.Error(err)
		var pErr *ProviderError
		require.True(errors.As(err, &pErr))
		assert.Equal("invalid_grant", pErr.Code)
		assert.Equal(http.StatusBadRequest, pErr.Status)

		stored, err := store.Load()
		require.NoError(err)
		assert.Nil(stored)
	})
	t.Run("provider-error-body", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
		require.NoError(err)
		tp.SetTokenError(http.StatusBadRequest, "invalid_grant", "Bad code")

		v, err := NewCodeVerifier()
		require.NoError(err)
		_, err = c.Exchange(ctx, "test-authorization-code", v)
		require.Error(err)
		var pErr *ProviderError
		require.True(errors.As(err, &pErr))
		assert.Equal("invalid_grant", pErr.Code)
		assert.Equal("Bad code", pErr.Description)
		assert.Equal(http.StatusBadRequest, pErr.Status)
	})
	t.Run("transport-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		cfg, err := NewConfig("test-client-id", "http://localhost/callback",
			WithEndpoints(
				"http://127.0.0.1:1/auth",
				"http://127.0.0.1:1/token",
				"http://127.0.0.1:1/userinfo",
			),
		)
		require.NoError(err)
		c, err := NewClient(cfg, &testTokenStore{})
		require.NoError(err)

		v, err := NewCodeVerifier()
		require.NoError(err)
		_, err = c.Exchange(ctx, "test-authorization-code", v)
		require.Error(err)
		assert.True(errors.Is(err, ErrTransport))
		var pErr *ProviderError
		assert.False(errors.As(err, &pErr))
	})
	t.Run("empty-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
		require.NoError(err)
		v, err := NewCodeVerifier()
		require.NoError(err)
		_, err = c.Exchange(ctx, "", v)
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestClient_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		require.NoError(store.Save(&Token{
			AccessToken:  "stale-access-token",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(-time.Hour),
		}))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		tok, err := c.Refresh(ctx)
		require.NoError(err)
		assert.Equal(AccessToken("test-access-token"), tok.AccessToken)
		assert.True(tok.Valid())
		assert.Equal(1, tp.TokenRequests())

		stored, err := store.Load()
		require.NoError(err)
		assert.Equal(tok, stored)
	})
	t.Run("preserves-refresh-token-when-omitted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetOmitRefreshToken(true)
		store := &testTokenStore{}
		require.NoError(store.Save(&Token{
			AccessToken:  "stale-access-token",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(-time.Hour),
		}))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		tok, err := c.Refresh(ctx)
		require.NoError(err)
		assert.Equal(RefreshToken("test-refresh-token"), tok.RefreshToken)
	})
	t.Run("no-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
		require.NoError(err)
		_, err = c.Refresh(ctx)
		require.Error(err)
		assert.True(errors.Is(err, ErrNotAuthenticated))
	})
	t.Run("rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		require.NoError(store.Save(&Token{
			AccessToken:  "stale-access-token",
			RefreshToken: "revoked-refresh-token",
			Expiry:       time.Now().Add(-time.Hour),
		}))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		_, err = c.Refresh(ctx)
		require.Error(err)
		var pErr *ProviderError
		require.True(errors.As(err, &pErr))
		assert.Equal("invalid_grant", pErr.Code)
	})
}

func TestClient_UserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	validToken := func() *Token {
		return &Token{
			AccessToken: "test-access-token",
			Expiry:      time.Now().Add(time.Hour),
		}
	}

	t.Run("success-persists-profile", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		require.NoError(store.Save(validToken()))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		p, err := c.UserInfo(ctx)
		require.NoError(err)
		require.NotNil(p)
		assert.Equal("alice@example.com", p.Email)
		assert.True(p.EmailVerified)
		assert.Equal("Alice Doe", p.Name)

		stored, err := store.LoadProfile()
		require.NoError(err)
		assert.Equal(p, stored)
	})
	t.Run("not-authenticated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), &testTokenStore{})
		require.NoError(err)
		_, err = c.UserInfo(ctx)
		require.Error(err)
		assert.True(errors.Is(err, ErrNotAuthenticated))
	})
	t.Run("expired-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		store := &testTokenStore{}
		require.NoError(store.Save(&Token{
			AccessToken: "test-access-token",
			Expiry:      time.Now().Add(-time.Minute),
		}))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)
		_, err = c.UserInfo(ctx)
		require.Error(err)
		assert.True(errors.Is(err, ErrNotAuthenticated))
	})
	t.Run("rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetDisableUserInfo(true)
		store := &testTokenStore{}
		require.NoError(store.Save(validToken()))
		c, err := NewClient(tp.Config("test-client-id", "http://localhost/callback"), store)
		require.NoError(err)

		_, err = c.UserInfo(ctx)
		require.Error(err)
		var pErr *ProviderError
		require.True(errors.As(err, &pErr))
		assert.Equal("server_error", pErr.Code)
		assert.Equal(http.StatusInternalServerError, pErr.Status)
	})
}
