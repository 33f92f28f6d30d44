package badger

import (
	"context"
	"testing"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_RoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	assert.Equal(t, Type, b.Type())

	require.NoError(t, b.Set(ctx, "site:theme", []byte("dark")))
	got, err := b.Get(ctx, "site:theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", string(got))

	require.NoError(t, b.Delete(ctx, "site:theme"))
	_, err = b.Get(ctx, "site:theme")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestBackend_KeysByPrefix(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	for _, k := range []string{"site:a", "site:b", "other:a"} {
		require.NoError(t, b.Set(ctx, k, []byte("v")))
	}

	keys, err := b.Keys(ctx, "site:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"site:a", "site:b"}, keys)
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "k", []byte("v")))
	require.NoError(t, b.Close())

	b, err = Open(dir, nil)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestBackend_CancelledContext(t *testing.T) {
	b := openTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Set(ctx, "k", []byte("v")), context.Canceled)
}
