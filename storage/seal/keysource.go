package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// MasterKey returns the master key for the given service, creating and
// storing a fresh random one on first use. The key lives in the platform's
// credential store (Keychain, Windows Credential Manager, Secret Service)
// when one is available; when it isn't, the key falls back to a local file
// readable only by the owner at fallbackPath.
func MasterKey(service string, account string, fallbackPath string) ([]byte, error) {
	const op = "seal.MasterKey"
	key, err := keyringKey(service, account)
	if err == nil {
		return key, nil
	}
	if fallbackPath == "" {
		return nil, fmt.Errorf("%s: platform keyring unavailable and no fallback path: %w", op, err)
	}
	key, ferr := localKey(fallbackPath)
	if ferr != nil {
		return nil, fmt.Errorf("%s: platform keyring unavailable: %w: %w", op, err, ferr)
	}
	return key, nil
}

// keyringKey loads the master key from the platform keyring, generating and
// storing one when none exists.
func keyringKey(service string, account string) ([]byte, error) {
	const op = "seal.keyringKey"
	encoded, err := keyring.Get(service, account)
	switch {
	case err == nil:
		key, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(key) != MasterKeyLen {
			return nil, fmt.Errorf("%s: stored key is malformed: %w", op, ErrInvalidKey)
		}
		return key, nil
	case errors.Is(err, keyring.ErrNotFound):
		key, genErr := newRandomKey()
		if genErr != nil {
			return nil, fmt.Errorf("%s: %w", op, genErr)
		}
		if setErr := keyring.Set(service, account, base64.StdEncoding.EncodeToString(key)); setErr != nil {
			return nil, fmt.Errorf("%s: unable to store key: %w", op, setErr)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%s: keyring: %w", op, err)
	}
}

// localKey loads the master key from a file, generating one with owner-only
// permissions when it doesn't exist.
func localKey(path string) ([]byte, error) {
	const op = "seal.localKey"
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, decErr := base64.StdEncoding.DecodeString(string(data))
		if decErr != nil || len(key) != MasterKeyLen {
			return nil, fmt.Errorf("%s: key file %s is malformed: %w", op, path, ErrInvalidKey)
		}
		return key, nil
	case os.IsNotExist(err):
		key, genErr := newRandomKey()
		if genErr != nil {
			return nil, fmt.Errorf("%s: %w", op, genErr)
		}
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
			return nil, fmt.Errorf("%s: unable to create key directory: %w", op, mkErr)
		}
		if wrErr := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); wrErr != nil {
			return nil, fmt.Errorf("%s: unable to write key file: %w", op, wrErr)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%s: unable to read key file: %w", op, err)
	}
}

func newRandomKey() ([]byte, error) {
	key := make([]byte, MasterKeyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("unable to generate key: %w", err)
	}
	return key, nil
}
