// Package seal provides authenticated encryption for records persisted at
// rest. Values are sealed with AES-256-GCM under a key derived from a
// caller-provided master key via HKDF-SHA256, so each store can derive its
// own AEAD key from one master secret.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidKey means the master key is missing or the wrong size
	ErrInvalidKey = errors.New("invalid master key")

	// ErrCorruptPayload means a sealed payload failed to decode or
	// authenticate, from tampering, truncation, or the wrong key.
	ErrCorruptPayload = errors.New("sealed payload is corrupt")
)

// MasterKeyLen is the required master key size in bytes.
const MasterKeyLen = 32

// Sealer seals and opens values with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a 32 byte master key. The info string
// domain-separates the derived AEAD key, so different stores sealing under
// the same master key cannot open each other's payloads.
func New(masterKey []byte, info string) (*Sealer, error) {
	const op = "seal.New"
	if len(masterKey) != MasterKeyLen {
		return nil, fmt.Errorf("%s: key is %d bytes, want %d: %w", op, len(masterKey), MasterKeyLen, ErrInvalidKey)
	}
	derived := make([]byte, MasterKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(info)), derived); err != nil {
		return nil, fmt.Errorf("%s: unable to derive key: %w", op, err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create cipher: %w", op, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create gcm: %w", op, err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64-encoded payload of
// nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	const op = "seal.Sealer.Seal"
	// AES-GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%s: unable to read nonce: %w", op, err)
	}
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)
	payload := append(nonce, ciphertext...)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open authenticates and decrypts one previously sealed payload.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	const op = "seal.Sealer.Open"
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode payload: %w", op, ErrCorruptPayload)
	}
	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return nil, fmt.Errorf("%s: payload is too short: %w", op, ErrCorruptPayload)
	}
	// Payload format is nonce || ciphertext.
	plaintext, err := s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to authenticate payload: %w", op, ErrCorruptPayload)
	}
	return plaintext, nil
}
