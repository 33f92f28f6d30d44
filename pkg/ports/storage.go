package ports

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a StorageBackend when a key does not exist
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by a StorageBackend that has run out of space
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// StorageBackend is a raw key/value store underneath the storage abstraction.
// Keys arrive already namespaced.
type StorageBackend interface {
	// Type names the backing, e.g. "memory", "badger", "redis"
	Type() string

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key starting with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
}
