package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aescanero/pagekit/pkg/ports"
)

// Type is the backing name reported by Backend
const Type = "memory"

// Backend implements ports.StorageBackend with an in-process map.
// It lives as long as the process and is used for session-scoped storage
// and as the fallback when a durable backing is unusable.
type Backend struct {
	data map[string][]byte
	mu   sync.RWMutex

	// maxBytes bounds the total size of keys and values, 0 means unbounded
	maxBytes int
	used     int
}

// NewBackend creates a new in-memory backend without a quota
func NewBackend() *Backend {
	return NewBackendWithQuota(0)
}

// NewBackendWithQuota creates an in-memory backend holding at most maxBytes
// of keys plus values. Writes beyond the quota fail with ports.ErrQuotaExceeded.
func NewBackendWithQuota(maxBytes int) *Backend {
	return &Backend{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Type implements ports.StorageBackend
func (b *Backend) Type() string {
	return Type
}

// Get returns a copy of the stored value
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, key)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value under key
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.used + len(key) + len(value)
	if old, ok := b.data[key]; ok {
		used -= len(key) + len(old)
	}
	if b.maxBytes > 0 && used > b.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes", ports.ErrQuotaExceeded, used, b.maxBytes)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[key] = stored
	b.used = used
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.data[key]; ok {
		b.used -= len(key) + len(old)
		delete(b.data, key)
	}
	return nil
}

// Keys returns every key with the given prefix in lexical order
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.data))
	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.data)
}
