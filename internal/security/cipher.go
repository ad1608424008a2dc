package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// ProfileCipher seals extracted profile facts before they reach storage.
// The stored form is AES-256-GCM ciphertext with the nonce prefixed.
type ProfileCipher struct {
	aead cipher.AEAD
}

// NewProfileCipher creates a cipher from a base64-encoded 32-byte key.
func NewProfileCipher(keyBase64 string) (*ProfileCipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length: %d (must be 32)", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &ProfileCipher{aead: aead}, nil
}

// Seal encrypts a fact list for storage. An empty list seals to nil so
// absent data stays absent in the database.
func (c *ProfileCipher) Seal(facts []string) ([]byte, error) {
	if len(facts) == 0 {
		return nil, nil
	}

	plaintext, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal facts: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a stored blob back into a fact list. Nil and empty blobs
// open to nil.
func (c *ProfileCipher) Open(blob []byte) ([]string, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt facts: %w", err)
	}

	var facts []string
	if err := json.Unmarshal(plaintext, &facts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal facts: %w", err)
	}
	return facts, nil
}
