package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// States reported by the orchestrator state gauge
var orchestratorStates = []string{"idle", "initializing", "ready", "error", "destroyed"}

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	modulesInitialized *prometheus.CounterVec
	moduleInitDuration *prometheus.HistogramVec
	modulesDestroyed   *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	handlersInvoked    *prometheus.CounterVec
	handlerErrors      *prometheus.CounterVec
	storageOps         *prometheus.CounterVec
	lifecycleDuration  *prometheus.HistogramVec
	orchestratorState  *prometheus.GaugeVec
	schedulerQueue     prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered with
// reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		modulesInitialized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_modules_initialized_total",
				Help: "Total number of module initializations by outcome",
			},
			[]string{"module", "status"},
		),
		moduleInitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagekit_module_init_duration_seconds",
				Help:    "Module initialization duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"module"},
		),
		modulesDestroyed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_modules_destroyed_total",
				Help: "Total number of module teardowns by outcome",
			},
			[]string{"module", "status"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_events_published_total",
				Help: "Total number of events published on the bus",
			},
			[]string{"event"},
		),
		handlersInvoked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_event_handlers_invoked_total",
				Help: "Total number of event handler invocations",
			},
			[]string{"event"},
		),
		handlerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_event_handler_errors_total",
				Help: "Total number of failed event handler invocations",
			},
			[]string{"pattern"},
		),
		storageOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"op", "backing", "status"},
		),
		lifecycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagekit_component_lifecycle_duration_seconds",
				Help:    "Component lifecycle operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"operation"},
		),
		orchestratorState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pagekit_orchestrator_state",
				Help: "Current orchestrator state, 1 for the active state",
			},
			[]string{"state"},
		),
		schedulerQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagekit_scheduler_queue_depth",
				Help: "Number of deferred tasks waiting for a worker",
			},
		),
	}
}

// RecordModuleInit records a module initialization outcome
func (c *Collector) RecordModuleInit(module, status string, duration time.Duration) {
	c.modulesInitialized.WithLabelValues(module, status).Inc()
	if duration > 0 {
		c.moduleInitDuration.WithLabelValues(module).Observe(duration.Seconds())
	}
}

// RecordModuleDestroy records a module teardown outcome
func (c *Collector) RecordModuleDestroy(module, status string) {
	c.modulesDestroyed.WithLabelValues(module, status).Inc()
}

// RecordEventPublished records a publish and the handlers it reached
func (c *Collector) RecordEventPublished(event string, handlers int) {
	c.eventsPublished.WithLabelValues(event).Inc()
	c.handlersInvoked.WithLabelValues(event).Add(float64(handlers))
}

// RecordHandlerError records a failed handler
func (c *Collector) RecordHandlerError(pattern string) {
	c.handlerErrors.WithLabelValues(pattern).Inc()
}

// RecordStorageOp records a storage operation
func (c *Collector) RecordStorageOp(op, backing, status string) {
	c.storageOps.WithLabelValues(op, backing, status).Inc()
}

// ObserveLifecycle records the duration of a component lifecycle operation
func (c *Collector) ObserveLifecycle(operation string, duration time.Duration) {
	c.lifecycleDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetOrchestratorState flags state as the active orchestrator state
func (c *Collector) SetOrchestratorState(state string) {
	for _, s := range orchestratorStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.orchestratorState.WithLabelValues(s).Set(v)
	}
}

// SetSchedulerQueue records the deferred task backlog
func (c *Collector) SetSchedulerQueue(depth int) {
	c.schedulerQueue.Set(float64(depth))
}
