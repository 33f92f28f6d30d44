package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/pagekit/pkg/adapters/storage/memory"
	"github.com/aescanero/pagekit/pkg/ports"
	"go.uber.org/zap"
)

// probeKey is written and deleted once at construction to test the backing
const probeKey = "__storage_probe__"

// Event names published for every storage mutation
const (
	EventSet           = "storage:set"
	EventRemove        = "storage:remove"
	EventClear         = "storage:clear"
	EventExpired       = "storage:expired"
	EventQuotaExceeded = "storage:quota-exceeded"
)

// ChangeEvent is the payload of every storage event
type ChangeEvent struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key,omitempty"`
	Value     any    `json:"value,omitempty"`
	Backing   string `json:"backing"`
	Count     int    `json:"count,omitempty"`
}

// Options configures a Storage
type Options struct {
	// Namespace is prepended, followed by ':', to every key
	Namespace string

	// DefaultTTL applies when Set is called without a TTL, 0 means no expiry
	DefaultTTL time.Duration

	Publisher ports.Publisher
	Metrics   ports.MetricsCollector
	Now       func() time.Time
}

// Storage is a namespaced, TTL-aware key/value store over a backing
type Storage struct {
	backend    ports.StorageBackend
	namespace  string
	prefix     string
	defaultTTL time.Duration
	publisher  ports.Publisher
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	now        func() time.Time

	requested string
	fallback  bool
}

// New creates a Storage over backend. If a trial write and delete on the
// backend fails, the Storage falls back to an in-memory backing for the
// rest of its lifetime.
func New(ctx context.Context, backend ports.StorageBackend, opts Options, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Storage{
		namespace:  opts.Namespace,
		prefix:     opts.Namespace + ":",
		defaultTTL: opts.DefaultTTL,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("namespace", opts.Namespace)),
		now:        opts.Now,
	}

	if backend == nil {
		backend = memory.NewBackend()
	}
	s.requested = backend.Type()

	if err := probe(ctx, backend, s.prefix+probeKey); err != nil {
		s.logger.Warn("storage backing unavailable, falling back to memory",
			zap.String("backing", backend.Type()),
			zap.Error(err))
		backend = memory.NewBackend()
		s.fallback = true
	}
	s.backend = backend

	return s
}

func probe(ctx context.Context, backend ports.StorageBackend, key string) error {
	if err := backend.Set(ctx, key, []byte(probeKey)); err != nil {
		return err
	}
	return backend.Delete(ctx, key)
}

// Namespace returns the namespace of this Storage
func (s *Storage) Namespace() string {
	return s.namespace
}

// Backing returns the type of the backing in use
func (s *Storage) Backing() string {
	return s.backend.Type()
}

// Fallback reports whether the requested backing was replaced by memory
func (s *Storage) Fallback() bool {
	return s.fallback
}

// Set stores value under key. A positive ttl overrides the default TTL.
// It reports whether the write succeeded and never returns an error;
// running out of space additionally publishes EventQuotaExceeded.
func (s *Storage) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	item, err := newItem(value, s.now(), ttl)
	if err != nil {
		s.logger.Error("failed to encode storage item",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordStorageOp("set", s.Backing(), "error")
		return false
	}

	data, err := json.Marshal(item)
	if err != nil {
		s.logger.Error("failed to encode storage envelope",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordStorageOp("set", s.Backing(), "error")
		return false
	}

	if err := s.backend.Set(ctx, s.prefix+key, data); err != nil {
		if errors.Is(err, ports.ErrQuotaExceeded) {
			s.logger.Warn("storage quota exceeded",
				zap.String("key", key),
				zap.Error(err))
			s.metrics.RecordStorageOp("set", s.Backing(), "quota_exceeded")
			s.emit(ctx, EventQuotaExceeded, ChangeEvent{Key: key, Value: value})
			return false
		}
		s.logger.Error("failed to write storage item",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordStorageOp("set", s.Backing(), "error")
		return false
	}

	s.metrics.RecordStorageOp("set", s.Backing(), "ok")
	s.emit(ctx, EventSet, ChangeEvent{Key: key, Value: value})
	return true
}

// Get returns the decoded value stored under key, or def when the key is
// absent, expired or unreadable. JSON numbers decode as float64.
func (s *Storage) Get(ctx context.Context, key string, def any) any {
	item, ok := s.load(ctx, key)
	if !ok {
		return def
	}

	var value any
	if err := json.Unmarshal(item.Value, &value); err != nil {
		s.logger.Warn("failed to decode storage value",
			zap.String("key", key),
			zap.Error(err))
		return def
	}
	return value
}

// GetInto decodes the value stored under key into out and reports whether
// a live value was found. out is left untouched otherwise.
func (s *Storage) GetInto(ctx context.Context, key string, out any) bool {
	item, ok := s.load(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(item.Value, out); err != nil {
		s.logger.Warn("failed to decode storage value",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

// Has reports whether a live value is stored under key. Like Get, it
// deletes the key when it has expired.
func (s *Storage) Has(ctx context.Context, key string) bool {
	_, ok := s.load(ctx, key)
	return ok
}

// Remove deletes key
func (s *Storage) Remove(ctx context.Context, key string) bool {
	if err := s.backend.Delete(ctx, s.prefix+key); err != nil {
		s.logger.Error("failed to remove storage item",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordStorageOp("remove", s.Backing(), "error")
		return false
	}

	s.metrics.RecordStorageOp("remove", s.Backing(), "ok")
	s.emit(ctx, EventRemove, ChangeEvent{Key: key})
	return true
}

// Clear removes every key in this namespace, leaving other keys on the
// same backing alone, and returns the number removed.
func (s *Storage) Clear(ctx context.Context) int {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		s.logger.Error("failed to list storage keys", zap.Error(err))
		s.metrics.RecordStorageOp("clear", s.Backing(), "error")
		return 0
	}

	removed := 0
	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Error("failed to remove storage item",
				zap.String("key", strings.TrimPrefix(key, s.prefix)),
				zap.Error(err))
			continue
		}
		removed++
	}

	s.metrics.RecordStorageOp("clear", s.Backing(), "ok")
	s.emit(ctx, EventClear, ChangeEvent{Count: removed})
	return removed
}

// Keys returns the keys of this namespace, without the prefix, sorted
func (s *Storage) Keys(ctx context.Context) []string {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		s.logger.Error("failed to list storage keys", zap.Error(err))
		return nil
	}

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, s.prefix))
	}
	sort.Strings(out)
	return out
}

// GetAll returns every live value of this namespace keyed without the prefix
func (s *Storage) GetAll(ctx context.Context) map[string]any {
	all := make(map[string]any)
	for _, key := range s.Keys(ctx) {
		item, ok := s.load(ctx, key)
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal(item.Value, &value); err != nil {
			continue
		}
		all[key] = value
	}
	return all
}

// CleanExpired removes every expired or malformed item in this namespace
// and returns the number removed. The owner is expected to call it
// periodically; reads stay correct between sweeps through lazy expiry.
func (s *Storage) CleanExpired(ctx context.Context) int {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		s.logger.Error("failed to list storage keys", zap.Error(err))
		return 0
	}

	now := s.now()
	removed := 0
	for _, fullKey := range keys {
		key := strings.TrimPrefix(fullKey, s.prefix)

		data, err := s.backend.Get(ctx, fullKey)
		if err != nil {
			continue
		}

		item, err := decodeItem(data)
		switch {
		case err != nil:
			s.logger.Warn("removing malformed storage item",
				zap.String("key", key),
				zap.Error(err))
		case item.expired(now):
		default:
			continue
		}

		if err := s.backend.Delete(ctx, fullKey); err != nil {
			s.logger.Error("failed to remove storage item",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		removed++
		if item != nil {
			s.emit(ctx, EventExpired, ChangeEvent{Key: key})
		}
	}

	if removed > 0 {
		s.logger.Debug("expired storage items removed", zap.Int("count", removed))
	}
	s.metrics.RecordStorageOp("sweep", s.Backing(), "ok")
	return removed
}

// TTL returns the time left before key expires. ok is false when the key
// is missing or has no expiry; an expired key reports (0, true). TTL never
// deletes anything.
func (s *Storage) TTL(ctx context.Context, key string) (remaining time.Duration, ok bool) {
	data, err := s.backend.Get(ctx, s.prefix+key)
	if err != nil {
		return 0, false
	}

	item, err := decodeItem(data)
	if err != nil || item.Expires == nil {
		return 0, false
	}
	return item.remaining(s.now()), true
}

// load reads and decodes the item under key. Expired items are deleted and
// announced; malformed items are treated as absent.
func (s *Storage) load(ctx context.Context, key string) (*Item, bool) {
	data, err := s.backend.Get(ctx, s.prefix+key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Error("failed to read storage item",
				zap.String("key", key),
				zap.Error(err))
			s.metrics.RecordStorageOp("get", s.Backing(), "error")
		}
		return nil, false
	}

	item, err := decodeItem(data)
	if err != nil {
		s.logger.Warn("ignoring malformed storage item",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordStorageOp("get", s.Backing(), "malformed")
		return nil, false
	}

	if item.expired(s.now()) {
		if err := s.backend.Delete(ctx, s.prefix+key); err != nil {
			s.logger.Error("failed to remove expired storage item",
				zap.String("key", key),
				zap.Error(err))
		}
		s.metrics.RecordStorageOp("get", s.Backing(), "expired")
		s.emit(ctx, EventExpired, ChangeEvent{Key: key})
		return nil, false
	}

	s.metrics.RecordStorageOp("get", s.Backing(), "ok")
	return item, true
}

func (s *Storage) emit(ctx context.Context, name string, event ChangeEvent) {
	if s.publisher == nil {
		return
	}
	event.Namespace = s.namespace
	event.Backing = s.Backing()
	s.publisher.Publish(ctx, name, event)
}
