package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/pagekit/pkg/adapters/storage/memory"
	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// brokenBackend fails every write, like a disabled or sandboxed store
type brokenBackend struct {
	*memory.Backend
}

func (brokenBackend) Type() string { return "broken" }

func (brokenBackend) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("storage disabled")
}

type recorder struct {
	bus    *eventbus.Bus
	events []eventbus.Event
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{bus: eventbus.New(zap.NewNop(), eventbus.Options{})}
	_, err := r.bus.Subscribe("storage:*", func(ctx context.Context, event eventbus.Event) error {
		r.events = append(r.events, event)
		return nil
	}, eventbus.SubscribeOptions{})
	require.NoError(t, err)
	return r
}

func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func newTestStorage(t *testing.T, clock *fakeClock, opts Options) (*Storage, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend()
	if opts.Namespace == "" {
		opts.Namespace = "test"
	}
	opts.Now = clock.Now
	return New(context.Background(), backend, opts, zap.NewNop()), backend
}

func TestStorage_SetGet(t *testing.T) {
	s, _ := newTestStorage(t, newClock(), Options{})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "theme", "dark", 0))
	assert.Equal(t, "dark", s.Get(ctx, "theme", nil))
	assert.True(t, s.Has(ctx, "theme"))

	assert.Equal(t, "light", s.Get(ctx, "missing", "light"))
	assert.False(t, s.Has(ctx, "missing"))
}

func TestStorage_GetInto(t *testing.T) {
	s, _ := newTestStorage(t, newClock(), Options{})
	ctx := context.Background()

	type prefs struct {
		Lang  string `json:"lang"`
		Count int    `json:"count"`
	}
	require.True(t, s.Set(ctx, "prefs", prefs{Lang: "en", Count: 3}, 0))

	var got prefs
	require.True(t, s.GetInto(ctx, "prefs", &got))
	assert.Equal(t, prefs{Lang: "en", Count: 3}, got)

	untouched := prefs{Lang: "fr"}
	assert.False(t, s.GetInto(ctx, "nope", &untouched))
	assert.Equal(t, "fr", untouched.Lang)
}

func TestStorage_TTLExpiry(t *testing.T) {
	clock := newClock()
	rec := newRecorder(t)
	s, backend := newTestStorage(t, clock, Options{Publisher: rec.bus})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", time.Second))
	clock.Advance(1001 * time.Millisecond)

	assert.Equal(t, "default", s.Get(ctx, "k", "default"))
	assert.False(t, s.Has(ctx, "k"))
	assert.Equal(t, 0, backend.Len())
	assert.Equal(t, []string{EventSet, EventExpired}, rec.names())
}

func TestStorage_NoTTLNeverExpires(t *testing.T) {
	clock := newClock()
	s, _ := newTestStorage(t, clock, Options{})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", 0))
	clock.Advance(10 * 365 * 24 * time.Hour)

	assert.Equal(t, "v", s.Get(ctx, "k", nil))
	assert.True(t, s.Has(ctx, "k"))
}

func TestStorage_EpochClock(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(0)}
	s, _ := newTestStorage(t, clock, Options{})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", 0))
	assert.True(t, s.Has(ctx, "k"))
	assert.Equal(t, "v", s.Get(ctx, "k", "default"))

	clock.Advance(time.Hour)
	assert.Zero(t, s.CleanExpired(ctx))
	assert.Equal(t, []string{"k"}, s.Keys(ctx))
}

func TestStorage_DefaultTTL(t *testing.T) {
	clock := newClock()
	s, _ := newTestStorage(t, clock, Options{DefaultTTL: time.Minute})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "short", 1, 0))
	require.True(t, s.Set(ctx, "long", 2, time.Hour))

	clock.Advance(2 * time.Minute)
	assert.False(t, s.Has(ctx, "short"))
	assert.Equal(t, float64(2), s.Get(ctx, "long", nil))
}

func TestStorage_TTL(t *testing.T) {
	clock := newClock()
	s, backend := newTestStorage(t, clock, Options{})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", 10*time.Second))
	clock.Advance(4 * time.Second)

	remaining, ok := s.TTL(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, 6*time.Second, remaining)

	require.True(t, s.Set(ctx, "forever", "v", 0))
	_, ok = s.TTL(ctx, "forever")
	assert.False(t, ok)

	_, ok = s.TTL(ctx, "missing")
	assert.False(t, ok)

	clock.Advance(time.Minute)
	remaining, ok = s.TTL(ctx, "k")
	assert.True(t, ok)
	assert.Zero(t, remaining)
	// the probe is read-only
	assert.Equal(t, 2, backend.Len())
}

func TestStorage_MalformedEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	backend := memory.NewBackend()
	s := New(context.Background(), backend, Options{Namespace: "ns"}, zap.New(core))
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "ns:broken", []byte("{not json")))
	require.NoError(t, backend.Set(ctx, "ns:legacy", []byte(`"plain string"`)))
	require.NoError(t, backend.Set(ctx, "ns:unversioned", []byte(`{"value":1,"created":5}`)))

	assert.Equal(t, "fallback", s.Get(ctx, "broken", "fallback"))
	assert.False(t, s.Has(ctx, "legacy"))
	assert.False(t, s.Has(ctx, "unversioned"))
	assert.GreaterOrEqual(t, logs.FilterMessage("ignoring malformed storage item").Len(), 3)
}

func TestStorage_NamespaceIsolation(t *testing.T) {
	clock := newClock()
	backend := memory.NewBackend()
	ctx := context.Background()

	a := New(ctx, backend, Options{Namespace: "a", Now: clock.Now}, nil)
	b := New(ctx, backend, Options{Namespace: "b", Now: clock.Now}, nil)

	require.True(t, a.Set(ctx, "x", 1, 0))
	require.True(t, a.Set(ctx, "y", 2, 0))
	require.True(t, b.Set(ctx, "x", 3, 0))
	require.NoError(t, backend.Set(ctx, "unrelated", []byte("keep")))

	assert.Equal(t, []string{"x", "y"}, a.Keys(ctx))
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(2)}, a.GetAll(ctx))

	assert.Equal(t, 2, a.Clear(ctx))
	assert.Empty(t, a.Keys(ctx))
	assert.Equal(t, float64(3), b.Get(ctx, "x", nil))

	raw, err := backend.Get(ctx, "unrelated")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(raw))
}

func TestStorage_Remove(t *testing.T) {
	rec := newRecorder(t)
	s, _ := newTestStorage(t, newClock(), Options{Publisher: rec.bus})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", 0))
	assert.True(t, s.Remove(ctx, "k"))
	assert.False(t, s.Has(ctx, "k"))

	require.Len(t, rec.events, 2)
	removed, ok := rec.events[1].Payload.(ChangeEvent)
	require.True(t, ok)
	assert.Equal(t, EventRemove, rec.events[1].Name)
	assert.Equal(t, "k", removed.Key)
	assert.Equal(t, "test", removed.Namespace)
	assert.Equal(t, memory.Type, removed.Backing)
}

func TestStorage_CleanExpired(t *testing.T) {
	clock := newClock()
	rec := newRecorder(t)
	s, backend := newTestStorage(t, clock, Options{Publisher: rec.bus})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "a", 1, time.Second))
	require.True(t, s.Set(ctx, "b", 2, time.Hour))
	require.True(t, s.Set(ctx, "c", 3, 0))
	require.NoError(t, backend.Set(ctx, "test:junk", []byte("??")))

	clock.Advance(time.Minute)
	assert.Equal(t, 2, s.CleanExpired(ctx))
	assert.Equal(t, []string{"b", "c"}, s.Keys(ctx))
	assert.Contains(t, rec.names(), EventExpired)
}

func TestStorage_QuotaExceeded(t *testing.T) {
	rec := newRecorder(t)
	backend := memory.NewBackendWithQuota(200)
	s := New(context.Background(), backend, Options{Namespace: "q", Publisher: rec.bus}, nil)
	ctx := context.Background()

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}

	assert.False(t, s.Set(ctx, "big", string(big), 0))
	assert.Equal(t, []string{EventQuotaExceeded}, rec.names())
	assert.False(t, s.Has(ctx, "big"))
}

func TestStorage_FallbackToMemory(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := New(context.Background(), brokenBackend{memory.NewBackend()}, Options{Namespace: "fb"}, zap.New(core))
	ctx := context.Background()

	assert.True(t, s.Fallback())
	assert.Equal(t, memory.Type, s.Backing())
	assert.Equal(t, 1, logs.FilterMessage("storage backing unavailable, falling back to memory").Len())

	require.True(t, s.Set(ctx, "k", "v", 0))
	assert.Equal(t, "v", s.Get(ctx, "k", nil))
	assert.Equal(t, 1, logs.Len())
}

func TestStorage_NilBackendUsesMemory(t *testing.T) {
	s := New(context.Background(), nil, Options{Namespace: "n"}, nil)
	assert.Equal(t, memory.Type, s.Backing())
	assert.False(t, s.Fallback())
}

func TestStorage_UnencodableValue(t *testing.T) {
	s, _ := newTestStorage(t, newClock(), Options{})
	assert.False(t, s.Set(context.Background(), "ch", make(chan int), 0))
}

func TestStorage_ReadErrorIsNotFatal(t *testing.T) {
	s := New(context.Background(), failingReads{memory.NewBackend()}, Options{Namespace: "r"}, nil)
	assert.Equal(t, "d", s.Get(context.Background(), "k", "d"))
}

type failingReads struct {
	*memory.Backend
}

func (failingReads) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("io error")
}

var _ ports.StorageBackend = brokenBackend{}
