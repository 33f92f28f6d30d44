package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassMounted marks the host element of a mounted component
const ClassMounted = "is-mounted"

// Scoped event types dispatched on the host element
const (
	EventInit        = "init"
	EventMount       = "mount"
	EventUnmount     = "unmount"
	EventDestroy     = "destroy"
	EventStateChange = "statechange"
	EventError       = "error"
	EventPerformance = "performance"
)

// ErrNilElement is returned by New without a host element
var ErrNilElement = errors.New("component requires a host element")

// InitHook is implemented by widgets that need setup before mounting
type InitHook interface {
	OnInit(ctx context.Context, c *Component) error
}

// MountHook is implemented by widgets that render when mounted
type MountHook interface {
	OnMount(ctx context.Context, c *Component) error
}

// UnmountHook is implemented by widgets that release rendering state
type UnmountHook interface {
	OnUnmount(ctx context.Context, c *Component) error
}

// DestroyHook is implemented by widgets with final teardown work
type DestroyHook interface {
	OnDestroy(ctx context.Context, c *Component) error
}

// ErrorDetail is the Detail of an EventError
type ErrorDetail struct {
	Operation string
	Err       error
}

// PerformanceDetail is the Detail of an EventPerformance
type PerformanceDetail struct {
	Operation string
	Duration  time.Duration
}

// BusPayload is published on the event bus for every scoped event
type BusPayload struct {
	ComponentID string `json:"component_id"`
	ElementID   string `json:"element_id"`
	Detail      any    `json:"detail,omitempty"`
}

// Options configures a Component
type Options struct {
	// Name scopes bus events as component:<Name>:<event>, default "component"
	Name string

	// DisableAutoMount keeps Init from mounting the component
	DisableAutoMount bool

	// Performance emits EventPerformance with lifecycle durations
	Performance bool

	InitialState map[string]any

	Publisher ports.Publisher
	Metrics   ports.MetricsCollector
}

// Component gives a widget a uniform lifecycle and a small reactive state
// container. Its lifecycle runs constructed → initialized → mounted ⇄
// unmounted → destroyed; destroyed is terminal.
//
// Lifecycle methods must not be called from the widget's own hooks.
type Component struct {
	id      string
	element Element
	hooks   any
	opts    Options
	logger  *zap.Logger
	metrics ports.MetricsCollector

	// lifecycle serializes transitions; the flags are readable from listeners
	lifecycle   sync.Mutex
	initialized atomic.Bool
	mounted     atomic.Bool
	destroyed   atomic.Bool

	stateMu   sync.RWMutex
	state     map[string]any
	observers map[string][]observerEntry
	nextObs   uint64

	handlersMu sync.Mutex
	handlers   map[string][]func()
}

// New creates a component hosted by element. hooks may implement any of
// InitHook, MountHook, UnmountHook and DestroyHook; nil means no hooks.
func New(element Element, hooks any, opts Options, logger *zap.Logger) (*Component, error) {
	if element == nil {
		return nil, ErrNilElement
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "component"
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}

	id := uuid.New().String()
	c := &Component{
		id:      id,
		element: element,
		hooks:   hooks,
		opts:    opts,
		metrics: opts.Metrics,
		logger: logger.With(
			zap.String("component", opts.Name),
			zap.String("component_id", id)),
		state:     make(map[string]any, len(opts.InitialState)),
		observers: make(map[string][]observerEntry),
		handlers:  make(map[string][]func()),
	}
	for k, v := range opts.InitialState {
		c.state[k] = v
	}

	element.SetComponent(c)
	return c, nil
}

// ID returns the generated component identifier
func (c *Component) ID() string { return c.id }

// Name returns the component name
func (c *Component) Name() string { return c.opts.Name }

// Element returns the host element
func (c *Component) Element() Element { return c.element }

// IsInitialized reports whether Init completed
func (c *Component) IsInitialized() bool {
	return c.initialized.Load()
}

// IsMounted reports whether the component is mounted
func (c *Component) IsMounted() bool {
	return c.mounted.Load()
}

// IsDestroyed reports whether the component was destroyed
func (c *Component) IsDestroyed() bool {
	return c.destroyed.Load()
}

// Init runs the init hook and, unless auto-mount is disabled, mounts the
// component. Calling it again is a logged no-op.
func (c *Component) Init(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.init(ctx, !c.opts.DisableAutoMount)
}

func (c *Component) init(ctx context.Context, autoMount bool) error {
	if c.destroyed.Load() {
		c.logger.Warn("init ignored: component destroyed")
		return nil
	}
	if c.initialized.Load() {
		c.logger.Warn("init ignored: component already initialized")
		return nil
	}

	start := time.Now()
	if h, ok := c.hooks.(InitHook); ok {
		if err := c.runHook(ctx, EventInit, func() error { return h.OnInit(ctx, c) }); err != nil {
			return err
		}
	}

	c.initialized.Store(true)
	c.emit(ctx, EventInit, nil, false)
	c.measure(ctx, EventInit, start)

	if autoMount {
		return c.mount(ctx)
	}
	return nil
}

// Mount runs the mount hook and marks the host element. An uninitialized
// component is initialized first.
func (c *Component) Mount(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.mount(ctx)
}

func (c *Component) mount(ctx context.Context) error {
	if c.destroyed.Load() {
		c.logger.Warn("mount ignored: component destroyed")
		return nil
	}
	if c.mounted.Load() {
		c.logger.Warn("mount ignored: component already mounted")
		return nil
	}
	if !c.initialized.Load() {
		c.logger.Warn("mount called before init, initializing first")
		if err := c.init(ctx, false); err != nil {
			return err
		}
	}

	start := time.Now()
	if h, ok := c.hooks.(MountHook); ok {
		if err := c.runHook(ctx, EventMount, func() error { return h.OnMount(ctx, c) }); err != nil {
			return err
		}
	}

	c.element.AddClass(ClassMounted)
	c.mounted.Store(true)
	c.emit(ctx, EventMount, nil, false)
	c.measure(ctx, EventMount, start)
	return nil
}

// Unmount runs the unmount hook and clears the host element marker. The
// component ends up unmounted even when the hook fails.
func (c *Component) Unmount(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.unmount(ctx)
}

func (c *Component) unmount(ctx context.Context) error {
	if c.destroyed.Load() {
		c.logger.Warn("unmount ignored: component destroyed")
		return nil
	}
	if !c.mounted.Load() {
		c.logger.Warn("unmount ignored: component not mounted")
		return nil
	}

	start := time.Now()
	var err error
	if h, ok := c.hooks.(UnmountHook); ok {
		err = c.runHook(ctx, EventUnmount, func() error { return h.OnUnmount(ctx, c) })
	}

	c.element.RemoveClass(ClassMounted)
	c.mounted.Store(false)
	c.emit(ctx, EventUnmount, nil, false)
	c.measure(ctx, EventUnmount, start)
	return err
}

// Destroy unmounts if needed, runs the destroy hook, removes every listener
// the component registered, clears observers and severs the element's
// back-reference. Teardown always completes; hook failures are returned
// joined. The destroy event is the last thing emitted.
func (c *Component) Destroy(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.destroyed.Load() {
		c.logger.Warn("destroy ignored: component already destroyed")
		return nil
	}

	start := time.Now()
	var errs []error
	if c.mounted.Load() {
		if err := c.unmount(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if h, ok := c.hooks.(DestroyHook); ok {
		if err := c.runHook(ctx, EventDestroy, func() error { return h.OnDestroy(ctx, c) }); err != nil {
			errs = append(errs, err)
		}
	}

	c.removeHandlers()
	c.clearObservers()
	c.element.SetComponent(nil)

	c.destroyed.Store(true)
	c.measure(ctx, EventDestroy, start)
	c.emit(ctx, EventDestroy, nil, false)

	return errors.Join(errs...)
}

// On registers l for a scoped event on the host element. The listener is
// removed automatically on Destroy; the returned func removes it earlier.
func (c *Component) On(eventType string, l Listener) func() {
	remove := c.element.AddListener(eventType, l)

	c.handlersMu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], remove)
	c.handlersMu.Unlock()

	return remove
}

func (c *Component) removeHandlers() {
	c.handlersMu.Lock()
	handlers := c.handlers
	c.handlers = make(map[string][]func())
	c.handlersMu.Unlock()

	for _, removers := range handlers {
		for _, remove := range removers {
			remove()
		}
	}
}

// Emit dispatches a scoped event on the host element and forwards it to
// the event bus when one is configured.
func (c *Component) Emit(ctx context.Context, eventType string, detail any) *Event {
	return c.emit(ctx, eventType, detail, false)
}

func (c *Component) emit(ctx context.Context, eventType string, detail any, cancelable bool) *Event {
	e := &Event{
		Type:       eventType,
		Component:  c,
		Detail:     detail,
		Cancelable: cancelable,
	}

	for _, err := range c.element.Dispatch(e) {
		c.logger.Error("component listener failed",
			zap.String("event", eventType),
			zap.Error(err))
	}

	if c.opts.Publisher != nil {
		c.opts.Publisher.Publish(ctx, c.busEventName(eventType), BusPayload{
			ComponentID: c.id,
			ElementID:   c.element.ID(),
			Detail:      detail,
		})
	}
	return e
}

func (c *Component) busEventName(eventType string) string {
	return fmt.Sprintf("component:%s:%s", c.opts.Name, eventType)
}

// runHook invokes a lifecycle hook, turning panics into errors. Failures
// are reported through a cancelable EventError; when no listener cancels
// it, the error is logged.
func (c *Component) runHook(ctx context.Context, operation string, hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
		if err != nil {
			err = fmt.Errorf("component %s: %s: %w", c.opts.Name, operation, err)
			c.reportError(ctx, operation, err)
		}
	}()
	return hook()
}

func (c *Component) reportError(ctx context.Context, operation string, err error) {
	e := c.emit(ctx, EventError, ErrorDetail{Operation: operation, Err: err}, true)
	if e.DefaultPrevented() {
		return
	}
	c.logger.Error("component lifecycle failed",
		zap.String("operation", operation),
		zap.Error(err))
}

func (c *Component) measure(ctx context.Context, operation string, start time.Time) {
	if !c.opts.Performance {
		return
	}
	d := time.Since(start)
	c.metrics.ObserveLifecycle(operation, d)
	c.emit(ctx, EventPerformance, PerformanceDetail{Operation: operation, Duration: d}, false)
}
