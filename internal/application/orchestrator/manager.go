package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aescanero/pagekit/pkg/capability"
	"github.com/aescanero/pagekit/pkg/ports"
	"go.uber.org/zap"
)

// Application lifecycle events
const (
	EventAppInitializing  = "app:initializing"
	EventAppReady         = "app:ready"
	EventAppError         = "app:error"
	EventAppDestroyed     = "app:destroyed"
	EventModuleInit       = "module:initialized"
	EventModuleError      = "module:error"
	EventModuleUnresolved = "module:unresolved"
	EventModuleDestroyed  = "module:destroyed"
)

// DefaultMaxPasses bounds the dependency resolution passes
const DefaultMaxPasses = 3

var (
	// ErrDuplicateModule is returned when a module name is registered twice
	ErrDuplicateModule = errors.New("module already registered")

	// ErrInvalidModule is returned for an empty name or a nil module
	ErrInvalidModule = errors.New("module needs a name and an instance")

	// ErrUnresolvedDependencies marks modules whose dependencies never initialized
	ErrUnresolvedDependencies = errors.New("unresolved dependencies")

	// ErrRequiredModule wraps the failure of a required module
	ErrRequiredModule = errors.New("required module failed")
)

// State is the application lifecycle state
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateError        State = "error"
	StateDestroyed    State = "destroyed"
)

// ModuleEvent is the payload of module:* events
type ModuleEvent struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"`
	Required bool          `json:"required"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// AppEvent is the payload of app:* events
type AppEvent struct {
	State       State         `json:"state"`
	Modules     int           `json:"modules"`
	Initialized int           `json:"initialized"`
	Failed      []string      `json:"failed,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Options configures a Manager
type Options struct {
	// MaxPasses bounds dependency resolution, default DefaultMaxPasses
	MaxPasses int

	// MaxErrors bounds the captured error log, default DefaultMaxErrors
	MaxErrors int

	Capabilities capability.Checker
	Publisher    ports.Publisher
	Metrics      ports.MetricsCollector
}

// Manager coordinates the lifecycle of the registered modules
type Manager struct {
	caps      capability.Checker
	publisher ports.Publisher
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger
	maxPasses int

	mu      sync.Mutex
	modules map[string]*registration
	nextSeq int
	state   State

	errMu     sync.Mutex
	errors    []CapturedError
	maxErrors int
}

// NewManager creates a new orchestrator manager
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	if opts.Capabilities == nil {
		opts.Capabilities = capability.AllEnabled
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}

	m := &Manager{
		caps:      opts.Capabilities,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		validator: NewValidator(),
		logger:    logger,
		maxPasses: opts.MaxPasses,
		modules:   make(map[string]*registration),
		state:     StateIdle,
		maxErrors: opts.MaxErrors,
	}
	m.metrics.SetOrchestratorState(string(StateIdle))
	return m
}

// Register adds a module. A module whose capability flag is disabled is
// skipped without error. Registering an existing name fails with
// ErrDuplicateModule and leaves the original registration in place.
func (m *Manager) Register(name string, module any, opts RegisterOptions) error {
	if name == "" || module == nil {
		return ErrInvalidModule
	}

	if opts.CapabilityFlag != "" && !m.caps.Enabled(opts.CapabilityFlag) {
		m.logger.Debug("module skipped, capability disabled",
			zap.String("module", name),
			zap.String("capability", opts.CapabilityFlag))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modules[name]; exists {
		m.logger.Error("module already registered", zap.String("module", name))
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	if m.state != StateIdle {
		m.logger.Warn("module registered after initialization, it will not be initialized",
			zap.String("module", name),
			zap.String("state", string(m.state)))
	}

	m.nextSeq++
	m.modules[name] = &registration{
		name:         name,
		instance:     module,
		opts:         opts,
		seq:          m.nextSeq,
		status:       StatusRegistered,
		registeredAt: time.Now(),
	}

	m.logger.Debug("module registered",
		zap.String("module", name),
		zap.Int("priority", opts.Priority),
		zap.Bool("required", opts.Required),
		zap.Strings("dependencies", opts.Dependencies))
	return nil
}

// InitializeAll initializes every registered module once. Modules run by
// descending priority; one whose dependencies are not initialized yet is
// deferred to the next pass, up to the configured number of passes.
// Failures of optional modules are recorded and skipped. A failing or
// unresolvable required module stops initialization and is returned.
// Calling it outside the idle state is a logged no-op.
func (m *Manager) InitializeAll(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("initialization ignored", zap.String("state", string(state)))
		return nil
	}
	m.setStateLocked(StateInitializing)
	mods := m.initOrderLocked()
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info("initializing modules", zap.Int("modules", len(mods)))
	m.publish(ctx, EventAppInitializing, AppEvent{State: StateInitializing, Modules: len(mods)})

	if err := m.validate(ctx, mods); err != nil {
		return m.fail(ctx, mods, start, err)
	}

	for pass := 1; pass <= m.maxPasses; pass++ {
		pending, progressed := 0, false
		for _, reg := range mods {
			if reg.status != StatusRegistered {
				continue
			}
			if !m.dependenciesReady(reg) {
				pending++
				continue
			}
			if err := m.initModule(ctx, reg); err != nil {
				if reg.opts.Required {
					return m.fail(ctx, mods, start, err)
				}
				continue
			}
			progressed = true
		}

		m.logger.Debug("initialization pass complete",
			zap.Int("pass", pass),
			zap.Int("pending", pending))
		if pending == 0 || !progressed {
			break
		}
	}

	if err := m.resolveLeftovers(ctx, mods); err != nil {
		return m.fail(ctx, mods, start, err)
	}

	m.mu.Lock()
	m.setStateLocked(StateReady)
	m.mu.Unlock()

	summary := summarize(mods, StateReady, time.Since(start))
	m.logger.Info("modules initialized",
		zap.Int("initialized", summary.Initialized),
		zap.Strings("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	m.publish(ctx, EventAppReady, summary)
	return nil
}

// initOrderLocked returns the registrations by descending priority,
// registration order on ties.
func (m *Manager) initOrderLocked() []*registration {
	mods := make([]*registration, 0, len(m.modules))
	for _, reg := range m.modules {
		mods = append(mods, reg)
	}
	slices.SortFunc(mods, func(a, b *registration) int {
		if c := cmp.Compare(b.opts.Priority, a.opts.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return mods
}

// validate marks modules with missing or circular dependencies as failed.
// It returns an error when one of them is required.
func (m *Manager) validate(ctx context.Context, mods []*registration) error {
	graph := make(map[string][]string, len(mods))
	for _, reg := range mods {
		graph[reg.name] = reg.opts.Dependencies
	}

	problems := m.validator.Validate(graph)
	var fatal error
	for _, reg := range mods {
		err, ok := problems[reg.name]
		if !ok {
			continue
		}
		m.markUnresolved(ctx, reg, err)
		if reg.opts.Required && fatal == nil {
			fatal = fmt.Errorf("%w: %s: %w", ErrRequiredModule, reg.name, err)
		}
	}
	return fatal
}

func (m *Manager) dependenciesReady(reg *registration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dep := range reg.opts.Dependencies {
		d, ok := m.modules[dep]
		if !ok || !d.initialized() {
			return false
		}
	}
	return true
}

func (m *Manager) initModule(ctx context.Context, reg *registration) error {
	log := m.logger.With(zap.String("module", reg.name))
	log.Debug("initializing module")

	start := time.Now()
	var err error
	if initializer, ok := reg.instance.(Initializer); ok {
		err = safeCall(func() error { return initializer.Init(ctx) })
	}
	duration := time.Since(start)

	m.mu.Lock()
	reg.initDuration = duration
	if err != nil {
		reg.status = StatusFailed
		reg.err = err
	} else {
		reg.status = StatusInitialized
		reg.initializedAt = time.Now()
	}
	m.mu.Unlock()

	event := moduleEvent(reg)
	event.Duration = duration

	if err != nil {
		log.Error("module initialization failed",
			zap.Bool("required", reg.opts.Required),
			zap.Error(err))
		m.metrics.RecordModuleInit(reg.name, "failed", duration)
		m.publish(ctx, EventModuleError, event)
		if reg.opts.Required {
			return fmt.Errorf("%w: %s: %w", ErrRequiredModule, reg.name, err)
		}
		return err
	}

	log.Info("module initialized", zap.Duration("duration", duration))
	m.metrics.RecordModuleInit(reg.name, "initialized", duration)
	m.publish(ctx, EventModuleInit, event)
	return nil
}

// resolveLeftovers reports modules still waiting on dependencies after the
// last pass. It returns an error when one of them is required.
func (m *Manager) resolveLeftovers(ctx context.Context, mods []*registration) error {
	var fatal error
	for _, reg := range mods {
		if reg.status != StatusRegistered {
			continue
		}

		var waiting []string
		m.mu.Lock()
		for _, dep := range reg.opts.Dependencies {
			if d, ok := m.modules[dep]; !ok || !d.initialized() {
				waiting = append(waiting, dep)
			}
		}
		m.mu.Unlock()

		err := fmt.Errorf("%w: %s waits on %v", ErrUnresolvedDependencies, reg.name, waiting)
		m.markUnresolved(ctx, reg, err)
		if reg.opts.Required && fatal == nil {
			fatal = fmt.Errorf("%w: %s: %w", ErrRequiredModule, reg.name, err)
		}
	}
	return fatal
}

func (m *Manager) markUnresolved(ctx context.Context, reg *registration, err error) {
	m.mu.Lock()
	reg.status = StatusUnresolved
	reg.err = err
	m.mu.Unlock()

	m.logger.Warn("module failed to initialize",
		zap.String("module", reg.name),
		zap.Bool("required", reg.opts.Required),
		zap.Error(err))
	m.metrics.RecordModuleInit(reg.name, "unresolved", 0)
	m.publish(ctx, EventModuleUnresolved, moduleEvent(reg))
}

// fail moves the application to the error state and announces it
func (m *Manager) fail(ctx context.Context, mods []*registration, start time.Time, err error) error {
	m.mu.Lock()
	m.setStateLocked(StateError)
	m.mu.Unlock()

	summary := summarize(mods, StateError, time.Since(start))
	summary.Error = err.Error()

	m.logger.Error("application initialization failed",
		zap.Int("initialized", summary.Initialized),
		zap.Error(err))
	m.publish(ctx, EventAppError, summary)
	return err
}

// DestroyAll tears down every initialized module by ascending priority,
// later registrations first on ties. Dependencies are not consulted, so a
// low-priority dependency goes down before a higher-priority dependent.
// Teardown errors are logged and never stop the remaining modules.
// Calling it twice, or during initialization, is a logged no-op.
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateDestroyed || m.state == StateInitializing {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("teardown ignored", zap.String("state", string(state)))
		return
	}
	mods := m.initOrderLocked()
	m.mu.Unlock()

	slices.Reverse(mods)
	start := time.Now()
	destroyed := 0

	for _, reg := range mods {
		if !reg.initialized() {
			continue
		}

		log := m.logger.With(zap.String("module", reg.name))
		var err error
		if d, ok := reg.instance.(Destroyer); ok {
			err = safeCall(func() error { return d.Destroy(ctx) })
		}

		m.mu.Lock()
		reg.status = StatusDestroyed
		m.mu.Unlock()
		destroyed++

		event := moduleEvent(reg)
		if err != nil {
			event.Error = err.Error()
			log.Error("module teardown failed", zap.Error(err))
			m.metrics.RecordModuleDestroy(reg.name, "failed")
		} else {
			log.Debug("module destroyed")
			m.metrics.RecordModuleDestroy(reg.name, "destroyed")
		}
		m.publish(ctx, EventModuleDestroyed, event)
	}

	m.mu.Lock()
	m.setStateLocked(StateDestroyed)
	m.mu.Unlock()

	m.logger.Info("modules destroyed",
		zap.Int("destroyed", destroyed),
		zap.Duration("duration", time.Since(start)))
	m.publish(ctx, EventAppDestroyed, AppEvent{
		State:       StateDestroyed,
		Modules:     len(mods),
		Initialized: destroyed,
		Duration:    time.Since(start),
	})
}

// State returns the application lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Module returns the instance registered under name
func (m *Manager) Module(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.modules[name]
	if !ok {
		return nil, false
	}
	return reg.instance, true
}

// Modules returns a snapshot of every registration in initialization order
func (m *Manager) Modules() []ModuleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	mods := m.initOrderLocked()
	out := make([]ModuleInfo, 0, len(mods))
	for _, reg := range mods {
		out = append(out, reg.info())
	}
	return out
}

func (m *Manager) setStateLocked(state State) {
	m.state = state
	m.metrics.SetOrchestratorState(string(state))
}

func (m *Manager) publish(ctx context.Context, name string, payload any) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(ctx, name, payload)
}

func moduleEvent(reg *registration) ModuleEvent {
	e := ModuleEvent{
		Name:     reg.name,
		Priority: reg.opts.Priority,
		Required: reg.opts.Required,
	}
	if reg.err != nil {
		e.Error = reg.err.Error()
	}
	return e
}

func summarize(mods []*registration, state State, d time.Duration) AppEvent {
	summary := AppEvent{State: state, Modules: len(mods), Duration: d}
	for _, reg := range mods {
		switch reg.status {
		case StatusInitialized:
			summary.Initialized++
		case StatusFailed, StatusUnresolved:
			summary.Failed = append(summary.Failed, reg.name)
		}
	}
	return summary
}

// safeCall runs a module hook, turning a panic into an error
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return fn()
}
