// Package keyvault seals small secrets (TOTP seeds, provider API keys) with
// XChaCha20-Poly1305 under a single master key.
package keyvault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey master key is not 32 bytes of hex
	ErrInvalidKey = errors.New("keyvault: master key must be 32 bytes hex encoded")
	// ErrInvalidCiphertext tampered, truncated or sealed under another key
	ErrInvalidCiphertext = errors.New("keyvault: invalid ciphertext")
)

// Vault implements auth.SecretSealer
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a raw 32 byte key
func New(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keyvault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewFromHex builds a vault from the hex form used in configuration
func NewFromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return New(key)
}

// Seal returns base64url(nonce || ciphertext)
func (v *Vault) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plaintext)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keyvault: nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal
func (v *Vault) Open(sealed string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	if len(data) < v.aead.NonceSize()+v.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := data[:v.aead.NonceSize()], data[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	return plaintext, nil
}
