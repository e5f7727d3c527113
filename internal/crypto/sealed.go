package crypto

import (
	"strings"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
)

const sealedPrefix = "sealed:v1:"

// SealedStorage encrypts selected keys before they reach the underlying storage.
// Other keys pass through untouched.
type SealedStorage struct {
	inner  storage.Storage
	secret []byte
	keys   map[string]bool
}

// NewSealedStorage wraps inner so that the listed keys are stored encrypted.
func NewSealedStorage(inner storage.Storage, secret string, keys ...string) (*SealedStorage, error) {
	if secret == "" {
		return nil, ErrInvalidKey
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &SealedStorage{inner: inner, secret: []byte(secret), keys: set}, nil
}

// Get implements storage.Storage.
// Values written before sealing was enabled are returned as stored.
func (s *SealedStorage) Get(key string) (string, bool, error) {
	value, ok, err := s.inner.Get(key)
	if err != nil || !ok || !s.keys[key] {
		return value, ok, err
	}
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, true, nil
	}
	plaintext, err := Decrypt(strings.TrimPrefix(value, sealedPrefix), s.secret)
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to unseal "+key, err)
	}
	return string(plaintext), true, nil
}

// Set implements storage.Storage.
func (s *SealedStorage) Set(key, value string) error {
	if !s.keys[key] {
		return s.inner.Set(key, value)
	}
	sealed, err := Encrypt([]byte(value), s.secret)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to seal "+key, err)
	}
	return s.inner.Set(key, sealedPrefix+sealed)
}

// Remove implements storage.Storage.
func (s *SealedStorage) Remove(key string) error {
	return s.inner.Remove(key)
}
