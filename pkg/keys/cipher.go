// Package keys seals recovery payloads at rest. The client-supplied blob
// is already ciphertext the server cannot read; sealing adds a second
// AES-256-GCM layer under a server-held master key so a database dump
// alone never yields the stored payloads.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const masterKeySize = 32

// PayloadCipher seals and unseals payload blobs.
type PayloadCipher interface {
	Seal(recoveryID string, payload []byte) (string, error)
	Unseal(recoveryID string, sealed string) ([]byte, error)
}

// MasterKeyFromBase64 decodes and validates a base64-encoded master key.
func MasterKeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(key))
	}
	return key, nil
}

type masterKeyCipher struct {
	masterKey []byte
}

// NewMasterKeyCipher creates a PayloadCipher backed by a 32-byte master key.
func NewMasterKeyCipher(masterKey []byte) (PayloadCipher, error) {
	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes (AES-256)", masterKeySize)
	}
	return &masterKeyCipher{masterKey: masterKey}, nil
}

// Seal encrypts payload with AES-256-GCM under a key derived per recovery.
// The result is base64(nonce || ciphertext || tag).
func (c *masterKeyCipher) Seal(recoveryID string, payload []byte) (string, error) {
	gcm, err := c.gcmFor(recoveryID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, payload, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal reverses Seal for the same recovery id.
func (c *masterKeyCipher) Unseal(recoveryID string, sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed payload: %w", err)
	}

	gcm, err := c.gcmFor(recoveryID)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal payload: %w", err)
	}
	return payload, nil
}

// gcmFor derives a per-recovery AES-256-GCM AEAD from the master key via
// HKDF-SHA256, with the recovery id as the info binding.
func (c *masterKeyCipher) gcmFor(recoveryID string) (cipher.AEAD, error) {
	derived := make([]byte, masterKeySize)
	kdf := hkdf.New(sha256.New, c.masterKey, nil, []byte("recovery-payload:"+recoveryID))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("failed to derive payload key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// NoopCipher passes payloads through unchanged. Used when no master key
// is configured and in tests.
type NoopCipher struct{}

func (NoopCipher) Seal(_ string, payload []byte) (string, error) {
	return string(payload), nil
}

func (NoopCipher) Unseal(_ string, sealed string) ([]byte, error) {
	return []byte(sealed), nil
}
