// Package component is the lifecycle base shared by UI widgets.
//
// A Component wraps a widget (anything implementing some of InitHook,
// MountHook, UnmountHook and DestroyHook) hosted on an Element. It runs the
// hooks at the matching transitions, keeps the mounted marker on the
// element, and offers a small state container with per-key observers.
//
// Scoped events (init, mount, unmount, destroy, statechange, error,
// performance) are dispatched on the element and, when a publisher is
// configured, forwarded to the event bus as component:<name>:<event>.
// Hook failures raise a cancelable error event; if no listener calls
// PreventDefault the failure is logged.
//
// Init and Destroy match the orchestrator's module hooks, so a Component
// can be registered as a module directly.
package component
