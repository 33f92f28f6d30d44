package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeMessage(t *testing.T) {
	event, err := decodeMessage(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"name": "app:ready",
			"data": `{"id":"e1","name":"app:ready","payload":{"modules":2},"timestamp":"2024-01-01T00:00:00Z"}`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, "app:ready", event.Name)
	assert.Equal(t, map[string]any{"modules": float64(2)}, event.Payload)
}

func TestDecodeMessage_Malformed(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestNewJournal_Defaults(t *testing.T) {
	j := NewJournal(nil, nil, Options{}, nil)
	assert.Equal(t, DefaultStream, j.opts.Stream)
	assert.Equal(t, eventbus.Wildcard, j.opts.Pattern)
	assert.Equal(t, 256, j.opts.Buffer)
}

func TestJournal_Live(t *testing.T) {
	addr := os.Getenv("PAGEKIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAGEKIT_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	stream := "pagekit:test:" + uuid.New().String()
	defer client.Del(ctx, stream)

	bus := eventbus.New(zap.NewNop(), eventbus.Options{})
	j := NewJournal(client, bus, Options{Stream: stream, Pattern: "app:*"}, zap.NewNop())
	require.NoError(t, j.Init(ctx))

	bus.Publish(ctx, "app:ready", map[string]any{"modules": 3})
	bus.Publish(ctx, "storage:set", nil)
	require.NoError(t, j.Destroy(ctx))

	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "app:ready", events[0].Name)

	consumeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	got := make(chan string, 1)
	go j.Consume(consumeCtx, "inspectors", "test", func(ctx context.Context, e eventbus.Event) error {
		got <- e.Name
		return nil
	})

	select {
	case name := <-got:
		assert.Equal(t, "app:ready", name)
	case <-consumeCtx.Done():
		t.Fatal("consumer received nothing")
	}
}
