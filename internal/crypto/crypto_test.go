package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewSealer(t *testing.T) {
	t.Parallel()

	if _, err := NewSealer(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := NewSealer("short"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if s, err := NewSealer(strings.Repeat("k", 32)); err != nil || s == nil {
		t.Fatalf("expected sealer, got %v", err)
	}
}

func TestSealOpenBindsLabel(t *testing.T) {
	t.Parallel()

	s, err := NewSealer(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	plaintext := []byte(`{"email":"nimal@example.com"}`)
	sealed, err := s.Seal(plaintext, "ORDER-1")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("nimal")) {
		t.Fatalf("expected ciphertext not to contain plaintext")
	}

	opened, err := s.Open(sealed, "ORDER-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %s", opened)
	}

	if _, err := s.Open(sealed, "ORDER-2"); err == nil {
		t.Fatalf("expected open under a different label to fail")
	}
	if _, err := s.Open([]byte("x"), "ORDER-1"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}
