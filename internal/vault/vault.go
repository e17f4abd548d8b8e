// Package vault encrypts device passwords at rest.
//
// Secrets are sealed with AES-256-GCM and stored as three hex fields joined
// by colons: "iv:tag:ciphertext". The key is either configured directly as
// 64 hex characters or derived from a passphrase with argon2id.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// argon2id parameters for passphrase-derived keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
)

const (
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrInvalidKey is returned when the key is not 32 bytes.
	ErrInvalidKey = errors.New("vault: key must be 32 bytes")

	// ErrMalformedPayload is returned when a payload is not three hex fields
	// of the expected sizes.
	ErrMalformedPayload = errors.New("vault: malformed payload")

	// ErrDecryptFailed is returned when authentication of the payload fails,
	// usually because it was sealed under a different key.
	ErrDecryptFailed = errors.New("vault: decryption failed")
)

// Vault seals and opens device secrets. Safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewFromConfig builds a vault from the security.vault section. A hex key
// wins over a passphrase.
func NewFromConfig(cfg config.VaultConfig) (*Vault, error) {
	if cfg.Key != "" {
		key, err := hex.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("decoding vault key: %w", err)
		}
		return New(key)
	}
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("%w: no key or passphrase configured", ErrInvalidKey)
	}
	return New(DeriveKey(cfg.Passphrase, cfg.Salt))
}

// DeriveKey stretches a passphrase into an AES-256 key with argon2id.
func DeriveKey(passphrase, salt string) []byte {
	return argon2.IDKey([]byte(passphrase), []byte(salt), argonTime, argonMemory, argonThreads, KeySize)
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a payload produced by Encrypt.
func (v *Vault) Decrypt(payload string) (string, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: want 3 parts, got %d", ErrMalformedPayload, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad iv", ErrMalformedPayload)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrMalformedPayload)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrMalformedPayload)
	}

	plain, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
