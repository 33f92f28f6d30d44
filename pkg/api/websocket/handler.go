package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // inspector is read-only
	},
}

// Handler handles WebSocket connections
type Handler struct {
	bus    *eventbus.Bus
	logger *zap.Logger
	buffer int
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus *eventbus.Bus, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bus:    bus,
		logger: logger,
		buffer: 64,
	}
}

// HandleEventStream streams the bus events matching ?pattern (default every
// event) until the client disconnects. Events a slow client cannot keep up
// with are dropped.
func (h *Handler) HandleEventStream(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", eventbus.Wildcard)
	replay, _ := strconv.Atoi(c.Query("replay"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.logger.With(
		zap.String("pattern", pattern),
		zap.String("client", c.ClientIP()))
	log.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	eventChan := make(chan eventbus.Event, h.buffer)
	sub, err := h.bus.Subscribe(pattern, func(ctx context.Context, event eventbus.Event) error {
		select {
		case eventChan <- event:
		default:
			log.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event", event.Name))
		}
		return nil
	}, eventbus.SubscribeOptions{})
	if err != nil {
		log.Error("failed to subscribe to events", zap.Error(err))
		return
	}
	defer sub.Unsubscribe()

	// Reading is only needed to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if replay > 0 {
		for _, event := range h.bus.History(pattern, replay) {
			if err := h.send(conn, event); err != nil {
				log.Debug("client gone during replay", zap.Error(err))
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("WebSocket connection closed")
			return
		case event := <-eventChan:
			if err := h.send(conn, event); err != nil {
				log.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, event eventbus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event",
			zap.String("event", event.Name),
			zap.Error(err))
		return nil
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
