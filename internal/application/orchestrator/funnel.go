package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventErrorCaptured is published for every error reaching the funnel
const EventErrorCaptured = "app:error-captured"

// DefaultMaxErrors bounds the captured error log
const DefaultMaxErrors = 100

// CapturedError is an error raised outside a lifecycle call
type CapturedError struct {
	Source string    `json:"source"`
	Error  string    `json:"error"`
	Time   time.Time `json:"time"`
}

// CaptureError records an error from a background task or handler, logs it
// and announces it on the bus. The oldest entries are dropped once the log
// is full.
func (m *Manager) CaptureError(ctx context.Context, source string, err error) {
	if err == nil {
		return
	}

	captured := CapturedError{Source: source, Error: err.Error(), Time: time.Now()}

	m.errMu.Lock()
	m.errors = append(m.errors, captured)
	if over := len(m.errors) - m.maxErrors; over > 0 {
		m.errors = append(m.errors[:0:0], m.errors[over:]...)
	}
	m.errMu.Unlock()

	m.logger.Error("uncaught error",
		zap.String("source", source),
		zap.Error(err))

	// Deferred so a capture from inside an event handler never re-enters the bus
	if m.publisher != nil {
		m.publisher.PublishDeferred(context.WithoutCancel(ctx), EventErrorCaptured, captured)
	}
}

// Go runs fn in its own goroutine and funnels its error or panic
func (m *Manager) Go(ctx context.Context, source string, fn func(ctx context.Context) error) {
	go func() {
		defer m.Recover(ctx, source)
		if err := fn(ctx); err != nil {
			m.CaptureError(ctx, source, err)
		}
	}()
}

// Recover funnels a panic of the calling goroutine. It must be deferred.
func (m *Manager) Recover(ctx context.Context, source string) {
	if r := recover(); r != nil {
		m.CaptureError(ctx, source, fmt.Errorf("panic: %v", r))
	}
}

// Errors returns the captured errors, oldest first
func (m *Manager) Errors() []CapturedError {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return append([]CapturedError(nil), m.errors...)
}
