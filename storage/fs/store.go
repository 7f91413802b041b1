// Package fs provides file-backed implementations of the oauth store
// contracts. Records are sealed with authenticated encryption before they
// touch disk and written atomically, so a crash mid-write can never leave a
// partially updated record, and an attempt or token survives a process
// restart.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/appauth-go/appauth/oauth"
	"github.com/appauth-go/appauth/storage/seal"
)

// sealedFile reads and writes one sealed JSON record.
type sealedFile struct {
	path   string
	sealer *seal.Sealer
}

// read unseals the record into v, returning false when no record exists.
func (f *sealedFile) read(v interface{}) (bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("unable to read %s: %w", f.path, err)
	}
	plaintext, err := f.sealer.Open(string(data))
	if err != nil {
		return false, fmt.Errorf("unable to unseal %s: %w", f.path, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return false, fmt.Errorf("unable to parse %s: %w", f.path, err)
	}
	return true, nil
}

// write seals v and replaces the record atomically via a temp file rename.
func (f *sealedFile) write(v interface{}) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to encode record: %w", err)
	}
	sealed, err := f.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("unable to seal record: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write([]byte(sealed)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("unable to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to replace %s: %w", f.path, err)
	}
	return nil
}

// remove deletes the record. Removing an absent record is not an error.
func (f *sealedFile) remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove %s: %w", f.path, err)
	}
	return nil
}

// attemptRecord is the persisted layout of the in-flight attempt.
type attemptRecord struct {
	CodeVerifier string `json:"code_verifier"`
	State        string `json:"state"`
	Timestamp    int64  `json:"timestamp"`
}

// AttemptStore persists the single in-flight attempt, sealed at rest, so a
// provider callback arriving into a fresh process still validates. It is
// safe for concurrent use.
type AttemptStore struct {
	mu      sync.Mutex
	file    sealedFile
	current *oauth.Attempt
	loaded  bool
}

// NewAttemptStore creates an AttemptStore persisting to path.
func NewAttemptStore(path string, sealer *seal.Sealer) (*AttemptStore, error) {
	const op = "fs.NewAttemptStore"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, oauth.ErrInvalidParameter)
	}
	if sealer == nil {
		return nil, fmt.Errorf("%s: sealer is nil: %w", op, oauth.ErrNilParameter)
	}
	return &AttemptStore{
		file: sealedFile{path: path, sealer: sealer},
	}, nil
}

// Begin implements the oauth.AttemptStore interface: it creates a fresh
// attempt, persists it, and replaces any prior one.
func (s *AttemptStore) Begin() (*oauth.Attempt, error) {
	const op = "fs.AttemptStore.Begin"
	a, err := oauth.NewAttempt()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	record := attemptRecord{
		CodeVerifier: a.Verifier().Verifier(),
		State:        a.State(),
		Timestamp:    a.CreatedAt().Unix(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.write(&record); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.current = a
	s.loaded = true
	return a, nil
}

// Current implements the oauth.AttemptStore interface, lazily loading the
// persisted attempt on first access per process lifetime.
func (s *AttemptStore) Current() (*oauth.Attempt, error) {
	const op = "fs.AttemptStore.Current"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.current, nil
	}
	s.loaded = true
	var record attemptRecord
	found, err := s.file.read(&record)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, nil
	}
	a, err := oauth.RestoreAttempt(record.CodeVerifier, record.State, time.Unix(record.Timestamp, 0))
	if err != nil {
		return nil, fmt.Errorf("%s: persisted attempt is invalid: %w", op, err)
	}
	s.current = a
	return a, nil
}

// Clear implements the oauth.AttemptStore interface, removing both the
// in-memory and persisted attempt.
func (s *AttemptStore) Clear() error {
	const op = "fs.AttemptStore.Clear"
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.loaded = true
	if err := s.file.remove(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// tokenRecord is the persisted layout of the credentials. The token, its
// expiry, and the cached profile live in one record so they are always
// written and cleared together.
type tokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenExpiry  int64  `json:"token_expiry"`
	UserProfile  string `json:"user_profile_json,omitempty"`
}

// TokenStore persists the token and cached profile, sealed at rest. It is
// safe for concurrent use.
type TokenStore struct {
	mu   sync.Mutex
	file sealedFile
}

// NewTokenStore creates a TokenStore persisting to path.
func NewTokenStore(path string, sealer *seal.Sealer) (*TokenStore, error) {
	const op = "fs.NewTokenStore"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, oauth.ErrInvalidParameter)
	}
	if sealer == nil {
		return nil, fmt.Errorf("%s: sealer is nil: %w", op, oauth.ErrNilParameter)
	}
	return &TokenStore{
		file: sealedFile{path: path, sealer: sealer},
	}, nil
}

// Save implements the oauth.TokenStore interface. The token and its expiry
// are written in one atomic operation, preserving any cached profile.
func (s *TokenStore) Save(t *oauth.Token) error {
	const op = "fs.TokenStore.Save"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, oauth.ErrNilParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var record tokenRecord
	if _, err := s.file.read(&record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	record.AccessToken = string(t.AccessToken)
	record.RefreshToken = string(t.RefreshToken)
	record.TokenType = t.TokenType
	record.Scope = t.Scope
	record.TokenExpiry = t.Expiry.UnixMilli()
	if err := s.file.write(&record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Load implements the oauth.TokenStore interface.
func (s *TokenStore) Load() (*oauth.Token, error) {
	const op = "fs.TokenStore.Load"
	s.mu.Lock()
	defer s.mu.Unlock()
	record, found, err := s.readRecord()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found || record.AccessToken == "" {
		return nil, nil
	}
	return &oauth.Token{
		AccessToken:  oauth.AccessToken(record.AccessToken),
		RefreshToken: oauth.RefreshToken(record.RefreshToken),
		TokenType:    record.TokenType,
		Scope:        record.Scope,
		Expiry:       time.UnixMilli(record.TokenExpiry),
	}, nil
}

// SaveProfile implements the oauth.TokenStore interface.
func (s *TokenStore) SaveProfile(p *oauth.Profile) error {
	const op = "fs.TokenStore.SaveProfile"
	if p == nil {
		return fmt.Errorf("%s: profile is nil: %w", op, oauth.ErrNilParameter)
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s: unable to encode profile: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var record tokenRecord
	if _, err := s.file.read(&record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	record.UserProfile = string(encoded)
	if err := s.file.write(&record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LoadProfile implements the oauth.TokenStore interface.
func (s *TokenStore) LoadProfile() (*oauth.Profile, error) {
	const op = "fs.TokenStore.LoadProfile"
	s.mu.Lock()
	defer s.mu.Unlock()
	record, found, err := s.readRecord()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found || record.UserProfile == "" {
		return nil, nil
	}
	var p oauth.Profile
	if err := json.Unmarshal([]byte(record.UserProfile), &p); err != nil {
		return nil, fmt.Errorf("%s: persisted profile is invalid: %w", op, err)
	}
	return &p, nil
}

// Valid implements the oauth.TokenStore interface.
func (s *TokenStore) Valid() bool {
	t, err := s.Load()
	if err != nil {
		return false
	}
	return t.Valid()
}

// Clear implements the oauth.TokenStore interface, removing the token and
// profile together.
func (s *TokenStore) Clear() error {
	const op = "fs.TokenStore.Clear"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.remove(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) readRecord() (tokenRecord, bool, error) {
	var record tokenRecord
	found, err := s.file.read(&record)
	return record, found, err
}
