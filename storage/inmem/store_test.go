package inmem

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appauth-go/appauth/oauth"
)

func TestAttemptStore(t *testing.T) {
	t.Parallel()
	t.Run("begin-then-current", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewAttemptStore()

		got, err := s.Current()
		require.NoError(err)
		assert.Nil(got)

		a, err := s.Begin()
		require.NoError(err)
		got, err = s.Current()
		require.NoError(err)
		assert.Same(a, got)
	})
	t.Run("begin-replaces-prior", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewAttemptStore()
		first, err := s.Begin()
		require.NoError(err)
		second, err := s.Begin()
		require.NoError(err)
		require.NotEqual(first.State(), second.State())

		got, err := s.Current()
		require.NoError(err)
		assert.Same(second, got)
	})
	t.Run("clear", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewAttemptStore()
		_, err := s.Begin()
		require.NoError(err)
		require.NoError(s.Clear())
		got, err := s.Current()
		require.NoError(err)
		assert.Nil(got)
	})
}

func TestTokenStore(t *testing.T) {
	t.Parallel()
	t.Run("save-then-load-copies", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewTokenStore()
		tok := &oauth.Token{
			AccessToken: "test-access-token",
			Expiry:      time.Now().Add(time.Hour),
		}
		require.NoError(s.Save(tok))

		got, err := s.Load()
		require.NoError(err)
		require.NotNil(got)
		assert.Equal(*tok, *got)
		assert.NotSame(tok, got)
		assert.True(s.Valid())

		// Mutating the caller's token must not reach the store.
		tok.AccessToken = "mutated"
		again, err := s.Load()
		require.NoError(err)
		assert.Equal(oauth.AccessToken("test-access-token"), again.AccessToken)
	})
	t.Run("empty", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewTokenStore()
		got, err := s.Load()
		require.NoError(err)
		assert.Nil(got)
		p, err := s.LoadProfile()
		require.NoError(err)
		assert.Nil(p)
		assert.False(s.Valid())
	})
	t.Run("profile-roundtrip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewTokenStore()
		require.NoError(s.SaveProfile(&oauth.Profile{Email: "alice@example.com"}))
		p, err := s.LoadProfile()
		require.NoError(err)
		require.NotNil(p)
		assert.Equal("alice@example.com", p.Email)
	})
	t.Run("clear-removes-token-and-profile", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewTokenStore()
		require.NoError(s.Save(&oauth.Token{
			AccessToken: "test-access-token",
			Expiry:      time.Now().Add(time.Hour),
		}))
		require.NoError(s.SaveProfile(&oauth.Profile{Email: "alice@example.com"}))
		require.NoError(s.Clear())

		got, err := s.Load()
		require.NoError(err)
		assert.Nil(got)
		p, err := s.LoadProfile()
		require.NoError(err)
		assert.Nil(p)
	})
	t.Run("nil-values", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewTokenStore()
		err := s.Save(nil)
		require.Error(err)
		assert.True(errors.Is(err, oauth.ErrNilParameter))
		err = s.SaveProfile(nil)
		require.Error(err)
		assert.True(errors.Is(err, oauth.ErrNilParameter))
	})
}
