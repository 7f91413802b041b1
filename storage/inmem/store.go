// Package inmem provides in-memory implementations of the oauth store
// contracts. They are handy for tests and for embedding the flow in a
// process that doesn't need credentials to outlive it.
package inmem

import (
	"fmt"
	"sync"

	"github.com/appauth-go/appauth/oauth"
)

// AttemptStore holds the single in-flight attempt in memory. It is safe for
// concurrent use.
type AttemptStore struct {
	mu      sync.Mutex
	current *oauth.Attempt
}

// NewAttemptStore creates an empty AttemptStore.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

// Begin implements the oauth.AttemptStore interface, replacing any prior
// attempt.
func (s *AttemptStore) Begin() (*oauth.Attempt, error) {
	a, err := oauth.NewAttempt()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = a
	return a, nil
}

// Current implements the oauth.AttemptStore interface.
func (s *AttemptStore) Current() (*oauth.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// Clear implements the oauth.AttemptStore interface.
func (s *AttemptStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return nil
}

// TokenStore holds the token and profile in memory. It is safe for
// concurrent use.
type TokenStore struct {
	mu      sync.Mutex
	token   *oauth.Token
	profile *oauth.Profile
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Save implements the oauth.TokenStore interface.
func (s *TokenStore) Save(t *oauth.Token) error {
	const op = "inmem.TokenStore.Save"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, oauth.ErrNilParameter)
	}
	cp := *t
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &cp
	return nil
}

// Load implements the oauth.TokenStore interface.
func (s *TokenStore) Load() (*oauth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, nil
	}
	cp := *s.token
	return &cp, nil
}

// SaveProfile implements the oauth.TokenStore interface.
func (s *TokenStore) SaveProfile(p *oauth.Profile) error {
	const op = "inmem.TokenStore.SaveProfile"
	if p == nil {
		return fmt.Errorf("%s: profile is nil: %w", op, oauth.ErrNilParameter)
	}
	cp := *p
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &cp
	return nil
}

// LoadProfile implements the oauth.TokenStore interface.
func (s *TokenStore) LoadProfile() (*oauth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil, nil
	}
	cp := *s.profile
	return &cp, nil
}

// Valid implements the oauth.TokenStore interface.
func (s *TokenStore) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.Valid()
}

// Clear implements the oauth.TokenStore interface, removing the token and
// profile together.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	s.profile = nil
	return nil
}
