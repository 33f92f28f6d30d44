package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aescanero/pagekit/internal/application/orchestrator"
	"github.com/aescanero/pagekit/pkg/adapters/storage/memory"
	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/aescanero/pagekit/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	server *Server
	orch   *orchestrator.Manager
	bus    *eventbus.Bus
	store  *storage.Storage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	bus := eventbus.New(zap.NewNop(), eventbus.Options{})
	orch := orchestrator.NewManager(orchestrator.Options{Publisher: bus}, zap.NewNop())
	store := storage.New(ctx, memory.NewBackend(), storage.Options{Namespace: "app", Publisher: bus}, zap.NewNop())

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "pagekit_test_total", Help: "test"}))

	server := NewServer(&Config{
		Orchestrator: orch,
		Bus:          bus,
		Storages:     []*storage.Storage{store},
		Gatherer:     reg,
	})
	return &fixture{server: server, orch: orch, bus: bus, store: store}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth_ReflectsOrchestratorState(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])

	require.NoError(t, f.orch.InitializeAll(context.Background()))
	rec, body = f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["checks"].(map[string]any)["orchestrator"])
}

func TestMetrics_UsesGatherer(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pagekit_test_total")
}

func TestModules(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orch.Register("nav", struct{}{}, orchestrator.RegisterOptions{Priority: 2}))
	require.NoError(t, f.orch.InitializeAll(context.Background()))

	rec, body := f.do(t, http.MethodGet, "/api/v1/modules")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, "ready", body["state"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/modules/nav")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "initialized", body["status"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/modules/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	f.orch.CaptureError(context.Background(), "search", errors.New("index offline"))
	f.bus.Wait()

	_, body := f.do(t, http.MethodGet, "/api/v1/errors")
	assert.Equal(t, float64(1), body["total"])
}

func TestEvents_HistoryAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bus.Publish(ctx, "user:login", nil)
	f.bus.Publish(ctx, "user:logout", nil)
	f.bus.Publish(ctx, "cart:add", nil)

	_, body := f.do(t, http.MethodGet, "/api/v1/events?pattern=user:*&limit=1")
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "user:logout", events[0].(map[string]any)["name"])

	rec, _ := f.do(t, http.MethodGet, "/api/v1/events?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/events")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.bus.History("", 0))
}

func TestListeners(t *testing.T) {
	f := newFixture(t)
	noop := func(context.Context, eventbus.Event) error { return nil }
	_, err := f.bus.Subscribe("user:*", noop, eventbus.SubscribeOptions{})
	require.NoError(t, err)
	_, err = f.bus.Subscribe("user:*", noop, eventbus.SubscribeOptions{})
	require.NoError(t, err)

	_, body := f.do(t, http.MethodGet, "/api/v1/listeners")
	assert.Equal(t, float64(2), body["listeners"].(map[string]any)["user:*"])
	assert.Equal(t, float64(2), body["total"])
}

func TestStorage_Endpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.store.Set(ctx, "theme", "dark", time.Hour))
	require.True(t, f.store.Set(ctx, "lang", "en", 0))

	_, body := f.do(t, http.MethodGet, "/api/v1/storage")
	namespaces := body["namespaces"].([]any)
	require.Len(t, namespaces, 1)
	assert.Equal(t, "app", namespaces[0].(map[string]any)["namespace"])

	_, body = f.do(t, http.MethodGet, "/api/v1/storage/app/keys")
	assert.ElementsMatch(t, []any{"theme", "lang"}, body["keys"])

	rec, body := f.do(t, http.MethodGet, "/api/v1/storage/app/items/theme")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dark", body["value"])
	assert.NotEmpty(t, body["expires_in"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/storage/app/items/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/storage/other/keys")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/v1/storage/app/cleanup")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["removed"])
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodOptions, "/api/v1/modules")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_AsModule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.server.Init(ctx))
	_, port, err := net.SplitHostPort(f.server.Addr())
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + "/api/v1/errors")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.server.Destroy(ctx))
}
