package orchestrator

import (
	"context"
	"time"
)

// Initializer is implemented by modules with setup work
type Initializer interface {
	Init(ctx context.Context) error
}

// Destroyer is implemented by modules with teardown work
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// BaseModule can be embedded by modules that only need one of the hooks
type BaseModule struct{}

// Init implements Initializer
func (BaseModule) Init(context.Context) error { return nil }

// Destroy implements Destroyer
func (BaseModule) Destroy(context.Context) error { return nil }

// RegisterOptions describes how a module takes part in the lifecycle
type RegisterOptions struct {
	// CapabilityFlag skips registration when the capability is disabled
	CapabilityFlag string

	// Required makes an initialization failure fatal for the application
	Required bool

	// Priority orders initialization, higher first
	Priority int

	// Dependencies must be initialized before this module
	Dependencies []string
}

// ModuleStatus is the lifecycle position of a registered module
type ModuleStatus string

const (
	StatusRegistered  ModuleStatus = "registered"
	StatusInitialized ModuleStatus = "initialized"
	StatusFailed      ModuleStatus = "failed"
	StatusUnresolved  ModuleStatus = "unresolved"
	StatusDestroyed   ModuleStatus = "destroyed"
)

// ModuleInfo is a read-only snapshot of a registered module
type ModuleInfo struct {
	Name           string        `json:"name"`
	Priority       int           `json:"priority"`
	Required       bool          `json:"required"`
	Dependencies   []string      `json:"dependencies,omitempty"`
	CapabilityFlag string        `json:"capability_flag,omitempty"`
	Status         ModuleStatus  `json:"status"`
	Error          string        `json:"error,omitempty"`
	InitDuration   time.Duration `json:"init_duration,omitempty"`
	RegisteredAt   time.Time     `json:"registered_at"`
	InitializedAt  *time.Time    `json:"initialized_at,omitempty"`
}

// registration is the manager's record for one module
type registration struct {
	name     string
	instance any
	opts     RegisterOptions
	seq      int

	status        ModuleStatus
	err           error
	initDuration  time.Duration
	registeredAt  time.Time
	initializedAt time.Time
}

func (r *registration) initialized() bool {
	return r.status == StatusInitialized
}

func (r *registration) info() ModuleInfo {
	info := ModuleInfo{
		Name:           r.name,
		Priority:       r.opts.Priority,
		Required:       r.opts.Required,
		Dependencies:   append([]string(nil), r.opts.Dependencies...),
		CapabilityFlag: r.opts.CapabilityFlag,
		Status:         r.status,
		InitDuration:   r.initDuration,
		RegisteredAt:   r.registeredAt,
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	if !r.initializedAt.IsZero() {
		t := r.initializedAt
		info.InitializedAt = &t
	}
	return info
}
