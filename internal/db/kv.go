package db

import (
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
)

// KVStore implements storage.Storage on the kv table.
type KVStore struct {
	db *DB
}

// NewKVStore returns a key-value view of db.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get implements storage.Storage.
func (s *KVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrStorage, "failed to read "+key, err)
	}
	return value, true, nil
}

// Set implements storage.Storage.
func (s *KVStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write "+key, err)
	}
	return nil
}

// Remove implements storage.Storage.
func (s *KVStore) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove "+key, err)
	}
	return nil
}
