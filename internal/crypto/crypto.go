// Package crypto seals customer data held outside the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingKey         = errors.New("encryption key is required")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Sealer encrypts values bound to a context label, so a ciphertext copied
// under another key fails to open.
type Sealer interface {
	Seal(plaintext []byte, label string) ([]byte, error)
	Open(ciphertext []byte, label string) ([]byte, error)
}

type aesGCMSealer struct {
	aead cipher.AEAD
}

// NewSealer creates an AES-256-GCM sealer from a 32-byte key.
func NewSealer(key string) (Sealer, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &aesGCMSealer{aead: aead}, nil
}

func (s *aesGCMSealer) Seal(plaintext []byte, label string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

func (s *aesGCMSealer) Open(ciphertext []byte, label string) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
