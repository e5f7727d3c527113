// Package crypto tests for at-rest sealing.
package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
)

// TestEncryptDecrypt_roundtrip verifies basic encryption and decryption.
func TestEncryptDecrypt_roundtrip(t *testing.T) {
	plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.session")
	key := []byte("test-key-12345")

	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(ciphertext, "session") {
		t.Error("ciphertext leaks plaintext")
	}

	decrypted, err := Decrypt(ciphertext, key)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

// TestEncrypt_sameKeyDifferentNonce verifies each encryption produces unique ciphertext.
func TestEncrypt_sameKeyDifferentNonce(t *testing.T) {
	key := []byte("test-key-12345")

	c1, _ := Encrypt([]byte("same"), key)
	c2, _ := Encrypt([]byte("same"), key)
	if c1 == c2 {
		t.Error("Encrypt() twice with same key produced same ciphertext (nonce should be random)")
	}
}

// TestDecrypt_failures verifies tampered, truncated and wrongly keyed input is rejected.
func TestDecrypt_failures(t *testing.T) {
	key := []byte("right")
	good, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := []byte(good)
	tampered[len(tampered)-3] ^= 0x01

	tests := []struct {
		name       string
		ciphertext string
		key        []byte
		want       error
	}{
		{"invalid base64", "!!not base64!!", key, ErrInvalidCiphertext},
		{"too short", "AAAA", key, ErrInvalidCiphertext},
		{"wrong key", good, []byte("wrong"), ErrInvalidCiphertext},
		{"tampered", string(tampered), key, ErrInvalidCiphertext},
		{"empty key", good, nil, ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.ciphertext, tt.key)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestSealedStorage verifies only the configured keys are encrypted at rest.
func TestSealedStorage(t *testing.T) {
	inner := storage.NewMemoryStorage()
	sealed, err := NewSealedStorage(inner, "machine-secret", storage.KeyToken)
	if err != nil {
		t.Fatalf("NewSealedStorage() error = %v", err)
	}

	if err := sealed.Set(storage.KeyToken, "jwt-token"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := sealed.Set(storage.KeyOfflineQueue, "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, _, _ := inner.Get(storage.KeyToken)
	if !strings.HasPrefix(raw, sealedPrefix) || strings.Contains(raw, "jwt-token") {
		t.Errorf("token stored as %q, want sealed value", raw)
	}
	raw, _, _ = inner.Get(storage.KeyOfflineQueue)
	if raw != "[]" {
		t.Errorf("queue stored as %q, want passthrough", raw)
	}

	v, ok, err := sealed.Get(storage.KeyToken)
	if err != nil || !ok || v != "jwt-token" {
		t.Errorf("Get() = %q, %v, %v", v, ok, err)
	}
}

// TestSealedStorage_legacyAndCorrupt verifies plaintext values still read and corrupt ones fail.
func TestSealedStorage_legacyAndCorrupt(t *testing.T) {
	inner := storage.NewMemoryStorage()
	sealed, _ := NewSealedStorage(inner, "machine-secret", storage.KeyToken)

	_ = inner.Set(storage.KeyToken, "plain-token")
	if v, _, err := sealed.Get(storage.KeyToken); err != nil || v != "plain-token" {
		t.Errorf("legacy Get() = %q, %v", v, err)
	}

	_ = inner.Set(storage.KeyToken, sealedPrefix+"garbage")
	_, _, err := sealed.Get(storage.KeyToken)
	if !apperrors.Is(err, apperrors.ErrCryptoFailed) {
		t.Errorf("corrupt Get() error = %v, want CRYPTO_FAILED", err)
	}
}

// TestNewSealedStorage_emptySecret verifies an empty secret is refused.
func TestNewSealedStorage_emptySecret(t *testing.T) {
	if _, err := NewSealedStorage(storage.NewMemoryStorage(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("NewSealedStorage(\"\") error = %v, want ErrInvalidKey", err)
	}
}
