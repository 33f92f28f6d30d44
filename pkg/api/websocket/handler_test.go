package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStreamServer(t *testing.T, bus *eventbus.Bus) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(bus, zap.NewNop()).HandleEventStream)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) eventbus.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event eventbus.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHandleEventStream_FiltersByPattern(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Options{})
	srv := newStreamServer(t, bus)
	conn := dial(t, srv, "?pattern=user:*")

	require.Eventually(t, func() bool { return bus.ListenerCount("user:*") == 1 },
		time.Second, 5*time.Millisecond)

	ctx := context.Background()
	bus.Publish(ctx, "cart:add", nil)
	bus.Publish(ctx, "user:login", map[string]any{"id": "u1"})

	event := readEvent(t, conn)
	assert.Equal(t, "user:login", event.Name)
	assert.Equal(t, map[string]any{"id": "u1"}, event.Payload)
}

func TestHandleEventStream_Replay(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Options{})
	ctx := context.Background()
	bus.Publish(ctx, "app:initializing", nil)
	bus.Publish(ctx, "app:ready", nil)

	srv := newStreamServer(t, bus)
	conn := dial(t, srv, "?pattern=app:*&replay=1")

	assert.Equal(t, "app:ready", readEvent(t, conn).Name)
}

func TestHandleEventStream_UnsubscribesOnClose(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Options{})
	srv := newStreamServer(t, bus)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return bus.ListenerCount(eventbus.Wildcard) == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bus.ListenerCount(eventbus.Wildcard) == 0 },
		time.Second, 5*time.Millisecond)
}
