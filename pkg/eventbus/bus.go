package eventbus

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidHandler is returned when subscribing a nil handler
	ErrInvalidHandler = errors.New("event handler must be a non-nil function")

	// ErrInvalidPattern is returned when subscribing with an empty pattern
	ErrInvalidPattern = errors.New("event pattern must not be empty")
)

// Event is a single published event
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes an event. A returned error or a panic is isolated to
// this handler and never reaches the publisher.
type Handler func(ctx context.Context, event Event) error

// SubscribeOptions tunes a subscription
type SubscribeOptions struct {
	// Priority orders handlers, higher runs first. Ties keep subscription order.
	Priority int
}

// Result is the outcome of one handler invocation during a publish
type Result struct {
	SubscriptionID string
	Pattern        string
	Err            error
}

// Options configures a Bus
type Options struct {
	HistorySize int
	Scheduler   Scheduler
	Metrics     ports.MetricsCollector
	Now         func() time.Time
}

type handlerEntry struct {
	id       string
	pattern  string
	handler  Handler
	priority int
	once     bool
	seq      uint64

	// executed guards one-time handlers picked up by overlapping publishes
	executed atomic.Bool
}

// Subscription identifies a registered handler
type Subscription struct {
	ID      string
	Pattern string
	bus     *Bus
}

// Unsubscribe removes the handler; it reports whether it was still registered
func (s *Subscription) Unsubscribe() bool {
	return s.bus.Unsubscribe(s.Pattern, s.ID)
}

// Bus is an in-process publish/subscribe bus with wildcard patterns,
// priorities and a bounded event history.
type Bus struct {
	logger    *zap.Logger
	metrics   ports.MetricsCollector
	scheduler Scheduler
	now       func() time.Time
	matcher   *matcher
	history   *history

	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
	seq      uint64

	deferred sync.WaitGroup
}

// New creates a new event bus
func New(logger *zap.Logger, opts Options) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = goScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Bus{
		logger:    logger,
		metrics:   opts.Metrics,
		scheduler: opts.Scheduler,
		now:       opts.Now,
		matcher:   newMatcher(),
		history:   newHistory(opts.HistorySize),
		handlers:  make(map[string][]*handlerEntry),
	}
}

// Subscribe registers handler for every event whose name matches pattern
func (b *Bus) Subscribe(pattern string, handler Handler, opts SubscribeOptions) (*Subscription, error) {
	return b.subscribe(pattern, handler, opts, false)
}

// SubscribeOnce registers handler and removes it after its first execution,
// whether it succeeded or failed.
func (b *Bus) SubscribeOnce(pattern string, handler Handler, opts SubscribeOptions) (*Subscription, error) {
	return b.subscribe(pattern, handler, opts, true)
}

func (b *Bus) subscribe(pattern string, handler Handler, opts SubscribeOptions, once bool) (*Subscription, error) {
	if handler == nil {
		return nil, ErrInvalidHandler
	}
	if pattern == "" {
		return nil, ErrInvalidPattern
	}

	b.mu.Lock()
	b.seq++
	entry := &handlerEntry{
		id:       uuid.New().String(),
		pattern:  pattern,
		handler:  handler,
		priority: opts.Priority,
		once:     once,
		seq:      b.seq,
	}
	b.handlers[pattern] = append(b.handlers[pattern], entry)
	b.mu.Unlock()

	b.logger.Debug("handler subscribed",
		zap.String("pattern", pattern),
		zap.String("subscription_id", entry.id),
		zap.Int("priority", opts.Priority),
		zap.Bool("once", once))

	return &Subscription{ID: entry.id, Pattern: pattern, bus: b}, nil
}

// Unsubscribe removes one handler by subscription ID
func (b *Bus) Unsubscribe(pattern, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removeLocked(pattern, id)
}

// UnsubscribeAll removes every handler registered under pattern, or every
// handler on the bus when pattern is empty. It returns the number removed.
func (b *Bus) UnsubscribeAll(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pattern == "" {
		removed := 0
		for _, entries := range b.handlers {
			removed += len(entries)
		}
		b.handlers = make(map[string][]*handlerEntry)
		return removed
	}

	removed := len(b.handlers[pattern])
	delete(b.handlers, pattern)
	return removed
}

func (b *Bus) removeLocked(pattern, id string) bool {
	entries := b.handlers[pattern]
	for i, entry := range entries {
		if entry.id != id {
			continue
		}
		entries = slices.Delete(entries, i, i+1)
		if len(entries) == 0 {
			delete(b.handlers, pattern)
		} else {
			b.handlers[pattern] = entries
		}
		return true
	}
	return false
}

// Publish delivers an event to every matching handler and returns how many
// handlers were invoked.
func (b *Bus) Publish(ctx context.Context, name string, payload any) int {
	return len(b.PublishWithResults(ctx, name, payload))
}

// PublishWithResults delivers an event like Publish and reports the outcome
// of every handler. Handlers run one at a time, highest priority first.
func (b *Bus) PublishWithResults(ctx context.Context, name string, payload any) []Result {
	event := Event{
		ID:        uuid.New().String(),
		Name:      name,
		Payload:   payload,
		Timestamp: b.now(),
	}
	b.history.add(event)

	entries := b.resolve(name)
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		if entry.once && !entry.executed.CompareAndSwap(false, true) {
			continue
		}

		err := b.invoke(ctx, entry, event)
		if entry.once {
			b.Unsubscribe(entry.pattern, entry.id)
		}
		if err != nil {
			b.logger.Error("event handler failed",
				zap.String("event", name),
				zap.String("pattern", entry.pattern),
				zap.String("subscription_id", entry.id),
				zap.Error(err))
			b.metrics.RecordHandlerError(entry.pattern)
		}

		results = append(results, Result{
			SubscriptionID: entry.id,
			Pattern:        entry.pattern,
			Err:            err,
		})
	}

	b.metrics.RecordEventPublished(name, len(results))
	return results
}

// PublishDeferred schedules a publish on a later turn. Failures are logged
// and never surface to the caller.
func (b *Bus) PublishDeferred(ctx context.Context, name string, payload any) {
	ctx = context.WithoutCancel(ctx)

	b.deferred.Add(1)
	task := func() {
		defer b.deferred.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("deferred publish panicked",
					zap.String("event", name),
					zap.Any("panic", r))
			}
		}()
		b.Publish(ctx, name, payload)
	}

	if err := b.scheduler.Schedule(task); err != nil {
		b.deferred.Done()
		b.logger.Error("failed to schedule deferred publish",
			zap.String("event", name),
			zap.Error(err))
	}
}

// Wait blocks until every deferred publish scheduled so far has run
func (b *Bus) Wait() {
	b.deferred.Wait()
}

// History returns recorded events matching pattern (all when empty),
// truncated to the most recent limit when limit is positive.
func (b *Bus) History(pattern string, limit int) []Event {
	events := b.history.snapshot()
	if pattern != "" {
		filtered := events[:0]
		for _, event := range events {
			if b.matcher.Match(pattern, event.Name) {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// ClearHistory drops every recorded event
func (b *Bus) ClearHistory() {
	b.history.clear()
}

// Replay re-publishes matching historical events, in their original order,
// to the handlers currently subscribed. It returns the number of events replayed.
func (b *Bus) Replay(ctx context.Context, pattern string, limit int) int {
	events := b.History(pattern, limit)
	for _, event := range events {
		b.Publish(ctx, event.Name, event.Payload)
	}

	b.logger.Debug("events replayed",
		zap.String("pattern", pattern),
		zap.Int("count", len(events)))

	return len(events)
}

// ListenerCount returns the number of handlers registered under exactly
// pattern, or on the whole bus when pattern is empty.
func (b *Bus) ListenerCount(pattern string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if pattern != "" {
		return len(b.handlers[pattern])
	}

	total := 0
	for _, entries := range b.handlers {
		total += len(entries)
	}
	return total
}

// Patterns returns every pattern that currently has handlers
func (b *Bus) Patterns() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	patterns := make([]string, 0, len(b.handlers))
	for pattern := range b.handlers {
		patterns = append(patterns, pattern)
	}
	slices.Sort(patterns)
	return patterns
}

// resolve collects the handlers of every pattern matching name, ordered by
// priority descending and then by subscription order.
func (b *Bus) resolve(name string) []*handlerEntry {
	b.mu.RLock()
	var entries []*handlerEntry
	for pattern, bucket := range b.handlers {
		if b.matcher.Match(pattern, name) {
			entries = append(entries, bucket...)
		}
	}
	b.mu.RUnlock()

	slices.SortFunc(entries, func(a, c *handlerEntry) int {
		if a.priority != c.priority {
			return cmp.Compare(c.priority, a.priority)
		}
		return cmp.Compare(a.seq, c.seq)
	})
	return entries
}

func (b *Bus) invoke(ctx context.Context, entry *handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return entry.handler(ctx, event)
}
