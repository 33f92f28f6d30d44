package component

import (
	"fmt"
	"sort"
	"sync"
)

// Event is dispatched on a component's host element
type Event struct {
	Type       string
	Component  *Component
	Detail     any
	Cancelable bool

	defaultPrevented bool
}

// PreventDefault cancels the default action of a cancelable event
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether a listener cancelled the event
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Listener receives events dispatched on an element
type Listener func(e *Event)

// Element is the DOM-like host node a component renders into
type Element interface {
	ID() string

	AddClass(name string)
	RemoveClass(name string)
	HasClass(name string) bool

	// AddListener registers l for eventType and returns its remover
	AddListener(eventType string, l Listener) (remove func())

	// Dispatch runs the listeners for e.Type in registration order and
	// returns the panics they raised as errors.
	Dispatch(e *Event) []error

	// SetComponent stores the back-reference to the owning component, nil clears it
	SetComponent(c *Component)
	Component() *Component
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Node is an in-memory Element
type Node struct {
	id string

	mu        sync.RWMutex
	classes   map[string]struct{}
	listeners map[string][]listenerEntry
	nextID    uint64
	component *Component
}

// NewNode creates a new host node
func NewNode(id string) *Node {
	return &Node{
		id:        id,
		classes:   make(map[string]struct{}),
		listeners: make(map[string][]listenerEntry),
	}
}

// ID implements Element
func (n *Node) ID() string {
	return n.id
}

// AddClass implements Element
func (n *Node) AddClass(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.classes[name] = struct{}{}
}

// RemoveClass implements Element
func (n *Node) RemoveClass(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.classes, name)
}

// HasClass implements Element
func (n *Node) HasClass(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.classes[name]
	return ok
}

// Classes returns the element's classes sorted
func (n *Node) Classes() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.classes))
	for name := range n.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddListener implements Element
func (n *Node) AddListener(eventType string, l Listener) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners[eventType] = append(n.listeners[eventType], listenerEntry{id: id, fn: l})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		entries := n.listeners[eventType]
		for i, entry := range entries {
			if entry.id == id {
				entries = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(entries) == 0 {
			delete(n.listeners, eventType)
		} else {
			n.listeners[eventType] = entries
		}
	}
}

// ListenerCount returns how many listeners are registered for eventType
func (n *Node) ListenerCount(eventType string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[eventType])
}

// Dispatch implements Element. A panicking listener does not stop the others.
func (n *Node) Dispatch(e *Event) []error {
	n.mu.RLock()
	entries := append([]listenerEntry(nil), n.listeners[e.Type]...)
	n.mu.RUnlock()

	var errs []error
	for _, entry := range entries {
		if err := callListener(entry.fn, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func callListener(fn Listener, e *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %q panicked: %v", e.Type, r)
		}
	}()
	fn(e)
	return nil
}

// SetComponent implements Element
func (n *Node) SetComponent(c *Component) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.component = c
}

// Component implements Element
func (n *Node) Component() *Component {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.component
}
