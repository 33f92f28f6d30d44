package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the stream key used when none is configured
const DefaultStream = "pagekit:events"

// Subscriber is the part of the event bus the journal listens on
type Subscriber interface {
	Subscribe(pattern string, handler eventbus.Handler, opts eventbus.SubscribeOptions) (*eventbus.Subscription, error)
}

// Options configures a Journal
type Options struct {
	// Stream is the Redis stream key, default DefaultStream
	Stream string

	// Pattern selects the mirrored events, default every event
	Pattern string

	// MaxLen trims the stream approximately, 0 keeps everything
	MaxLen int64

	// Buffer bounds the events waiting to be written, default 256
	Buffer int

	// WriteTimeout bounds a single XADD, default 2s
	WriteTimeout time.Duration
}

// Journal mirrors bus events into a Redis Stream so other processes can
// follow the page runtime. Writes happen off the publish path; when the
// buffer is full, events are dropped and logged.
type Journal struct {
	client *redis.Client
	bus    Subscriber
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	sub     *eventbus.Subscription
	queue   chan eventbus.Event
	done    chan struct{}
	dropped int
}

// NewJournal creates a journal over client fed by bus
func NewJournal(client *redis.Client, bus Subscriber, opts Options, logger *zap.Logger) *Journal {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.Pattern == "" {
		opts.Pattern = eventbus.Wildcard
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		client: client,
		bus:    bus,
		opts:   opts,
		logger: logger.With(zap.String("stream", opts.Stream)),
	}
}

// Init subscribes to the bus and starts the writer
func (j *Journal) Init(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.sub != nil {
		return nil
	}

	if err := j.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("journal redis unavailable: %w", err)
	}

	j.queue = make(chan eventbus.Event, j.opts.Buffer)
	j.done = make(chan struct{})

	sub, err := j.bus.Subscribe(j.opts.Pattern, j.enqueue, eventbus.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("failed to subscribe journal: %w", err)
	}
	j.sub = sub

	go j.write(j.queue, j.done)

	j.logger.Info("event journal started", zap.String("pattern", j.opts.Pattern))
	return nil
}

// Destroy unsubscribes, flushes the buffered events and stops the writer
func (j *Journal) Destroy(ctx context.Context) error {
	j.mu.Lock()
	sub, queue, done := j.sub, j.queue, j.done
	j.sub = nil
	if sub != nil {
		sub.Unsubscribe()
		close(queue)
	}
	j.mu.Unlock()

	if sub == nil {
		return nil
	}

	select {
	case <-done:
		j.logger.Info("event journal stopped", zap.Int("dropped", j.Dropped()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("journal flush interrupted: %w", ctx.Err())
	}
}

// Dropped returns the number of events lost to a full buffer
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) enqueue(ctx context.Context, event eventbus.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.sub == nil {
		return nil
	}
	select {
	case j.queue <- event:
	default:
		j.dropped++
		j.logger.Warn("journal buffer full, event dropped", zap.String("event", event.Name))
	}
	return nil
}

func (j *Journal) write(queue <-chan eventbus.Event, done chan<- struct{}) {
	defer close(done)

	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), j.opts.WriteTimeout)
		if err := j.Append(ctx, event); err != nil {
			j.logger.Error("failed to append event",
				zap.String("event", event.Name),
				zap.Error(err))
		}
		cancel()
	}
}

// Append writes one event to the stream
func (j *Journal) Append(ctx context.Context, event eventbus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: j.opts.Stream,
		Values: map[string]interface{}{
			"name": event.Name,
			"data": string(data),
		},
	}
	if j.opts.MaxLen > 0 {
		args.MaxLen = j.opts.MaxLen
		args.Approx = true
	}

	if _, err := j.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	j.logger.Debug("event journaled",
		zap.String("event_id", event.ID),
		zap.String("event", event.Name))
	return nil
}

// Recent returns up to count journaled events, oldest first
func (j *Journal) Recent(ctx context.Context, count int64) ([]eventbus.Event, error) {
	messages, err := j.client.XRevRangeN(ctx, j.opts.Stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]eventbus.Event, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		event, err := decodeMessage(messages[i])
		if err != nil {
			j.logger.Warn("skipping malformed journal entry",
				zap.String("message_id", messages[i].ID),
				zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Consume reads the journal as member consumer of group until ctx ends,
// acknowledging every event handler accepts.
func (j *Journal) Consume(ctx context.Context, group, consumer string, handler eventbus.Handler) error {
	err := j.client.XGroupCreateMkStream(ctx, j.opts.Stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	j.logger.Info("consuming event journal",
		zap.String("consumer_group", group),
		zap.String("consumer", consumer))

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := j.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{j.opts.Stream, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			j.logger.Error("failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				j.processMessage(ctx, group, message, handler)
			}
		}
	}
}

// processMessage hands one stream message to handler and acknowledges it
func (j *Journal) processMessage(ctx context.Context, group string, message redis.XMessage, handler eventbus.Handler) {
	event, err := decodeMessage(message)
	if err != nil {
		j.logger.Error("invalid message format",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		j.logger.Error("handler error",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := j.client.XAck(ctx, j.opts.Stream, group, message.ID).Err(); err != nil {
		j.logger.Error("failed to acknowledge message",
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

func decodeMessage(message redis.XMessage) (eventbus.Event, error) {
	var event eventbus.Event

	data, ok := message.Values["data"].(string)
	if !ok {
		return event, errors.New("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
