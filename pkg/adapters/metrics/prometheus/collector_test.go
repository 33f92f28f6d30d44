package prometheus

import (
	"testing"
	"time"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.MetricsCollector = (*Collector)(nil)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(prometheus.NewRegistry())
}

func TestCollector_ModuleMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.RecordModuleInit("nav", "initialized", 20*time.Millisecond)
	c.RecordModuleInit("chat", "failed", time.Millisecond)
	c.RecordModuleInit("chat", "unresolved", 0)
	c.RecordModuleDestroy("nav", "destroyed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.modulesInitialized.WithLabelValues("nav", "initialized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.modulesInitialized.WithLabelValues("chat", "unresolved")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.moduleInitDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.modulesDestroyed.WithLabelValues("nav", "destroyed")))
}

func TestCollector_EventMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.RecordEventPublished("app:ready", 3)
	c.RecordEventPublished("app:ready", 0)
	c.RecordHandlerError("app:*")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsPublished.WithLabelValues("app:ready")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.handlersInvoked.WithLabelValues("app:ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handlerErrors.WithLabelValues("app:*")))
}

func TestCollector_OrchestratorState(t *testing.T) {
	c := newTestCollector(t)

	c.SetOrchestratorState("initializing")
	c.SetOrchestratorState("ready")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.orchestratorState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.orchestratorState.WithLabelValues("initializing")))
}

func TestCollector_StorageAndScheduler(t *testing.T) {
	c := newTestCollector(t)

	c.RecordStorageOp("set", "memory", "ok")
	c.ObserveLifecycle("mount", time.Millisecond)
	c.SetSchedulerQueue(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storageOps.WithLabelValues("set", "memory", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.lifecycleDuration))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.schedulerQueue))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
