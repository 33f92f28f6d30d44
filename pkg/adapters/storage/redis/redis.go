package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Type is the backing name reported by Backend
const Type = "redis"

// DefaultKeyPrefix isolates pagekit keys from anything else in the database
const DefaultKeyPrefix = "pagekit:kv:"

// Backend implements ports.StorageBackend using Redis strings
type Backend struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// NewBackend creates a new Redis storage backend. An empty keyPrefix uses
// DefaultKeyPrefix.
func NewBackend(client *redis.Client, keyPrefix string, logger *zap.Logger) *Backend {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
	}
}

// Type implements ports.StorageBackend
func (b *Backend) Type() string {
	return Type
}

// Get retrieves the raw value stored under key
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return data, nil
}

// Set stores value under key without a Redis-side expiry; expiry is
// tracked in the stored envelope.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.redisKey(key), value, 0).Err(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("%w: %v", ports.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to set key: %w", err)
	}

	b.logger.Debug("key stored",
		zap.String("key", key),
		zap.Int("bytes", len(value)))

	return nil
}

// Delete removes key
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Keys scans every key starting with prefix
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(b.keyPrefix+prefix) + "*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, b.keyPrefix))
		}

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (b *Backend) redisKey(key string) string {
	return b.keyPrefix + key
}

// isOutOfMemory reports whether Redis refused a write because maxmemory was reached
func isOutOfMemory(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}

// escapeGlob quotes the characters SCAN MATCH treats specially
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
