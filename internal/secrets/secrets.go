// Package secrets encrypts sensitive assistant configuration, notably
// provider API keys, before they reach the database.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. The salt is fixed so the same secret always
// derives the same key across restarts.
const (
	saltV1     = "prompting_realities_salt_v1"
	iterations = 100000
	keyLen     = 32
)

var errCiphertextTooShort = errors.New("ciphertext too short")

// Box encrypts and decrypts short strings with a key derived from a shared
// secret.
type Box struct {
	aead cipher.AEAD
}

// NewBox derives an AES-256-GCM cipher from the configured secret.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}

	key := pbkdf2.Key([]byte(secret), []byte(saltV1), iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Encrypt seals a plaintext string. Empty input encrypts to empty output so
// optional fields round-trip without special cases.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed string produced by Encrypt.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < b.aead.NonceSize() {
		return "", errCiphertextTooShort
	}

	nonce, sealed := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
