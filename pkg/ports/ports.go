package ports

import (
	"context"
	"time"
)

// Publisher is the part of the event bus the runtime uses to announce
// lifecycle and storage changes.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) int
	PublishDeferred(ctx context.Context, name string, payload any)
}

// MetricsCollector records runtime metrics
type MetricsCollector interface {
	RecordModuleInit(module, status string, duration time.Duration)
	RecordModuleDestroy(module, status string)
	RecordEventPublished(event string, handlers int)
	RecordHandlerError(pattern string)
	RecordStorageOp(op, backing, status string)
	ObserveLifecycle(operation string, duration time.Duration)
	SetOrchestratorState(state string)
	SetSchedulerQueue(depth int)
}

// NopMetrics discards every measurement
type NopMetrics struct{}

func (NopMetrics) RecordModuleInit(string, string, time.Duration) {}
func (NopMetrics) RecordModuleDestroy(string, string)             {}
func (NopMetrics) RecordEventPublished(string, int)               {}
func (NopMetrics) RecordHandlerError(string)                      {}
func (NopMetrics) RecordStorageOp(string, string, string)         {}
func (NopMetrics) ObserveLifecycle(string, time.Duration)         {}
func (NopMetrics) SetOrchestratorState(string)                    {}
func (NopMetrics) SetSchedulerQueue(int)                          {}
