package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `pagekit:kv:a\*b\?\[c\]`, escapeGlob("pagekit:kv:a*b?[c]"))
	assert.Equal(t, "plain:key", escapeGlob("plain:key"))
}

func TestIsOutOfMemory(t *testing.T) {
	assert.True(t, isOutOfMemory(errors.New("OOM command not allowed when used memory > 'maxmemory'.")))
	assert.False(t, isOutOfMemory(errors.New("ERR wrong number of arguments")))
}

// TestBackend_Live runs against a real Redis when PAGEKIT_TEST_REDIS_ADDR is set
func TestBackend_Live(t *testing.T) {
	addr := os.Getenv("PAGEKIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAGEKIT_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	b := NewBackend(client, "pagekit:test:", nil)

	require.NoError(t, b.Set(ctx, "ns:a", []byte("1")))
	require.NoError(t, b.Set(ctx, "ns:b", []byte("2")))
	t.Cleanup(func() {
		_ = b.Delete(ctx, "ns:a")
		_ = b.Delete(ctx, "ns:b")
	})

	got, err := b.Get(ctx, "ns:a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	keys, err := b.Keys(ctx, "ns:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns:a", "ns:b"}, keys)

	require.NoError(t, b.Delete(ctx, "ns:a"))
	_, err = b.Get(ctx, "ns:a")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
