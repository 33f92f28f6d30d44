package component

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

// Observer is notified when an observed state key changes
type Observer func(newValue, oldValue any)

// Change describes one changed state key
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type observerEntry struct {
	id uint64
	fn Observer
}

// State returns the value stored under key
func (c *Component) State(key string) (any, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	v, ok := c.state[key]
	return v, ok
}

// Snapshot returns a shallow copy of the whole state
func (c *Component) Snapshot() map[string]any {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	out := make(map[string]any, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// SetState stores one key. See MergeState.
func (c *Component) SetState(key string, value any) map[string]Change {
	return c.MergeStateContext(context.Background(), map[string]any{key: value})
}

// SetStateContext is SetState with the context handed to bus handlers
func (c *Component) SetStateContext(ctx context.Context, key string, value any) map[string]Change {
	return c.MergeStateContext(ctx, map[string]any{key: value})
}

// MergeState merges values into the state. See MergeStateContext.
func (c *Component) MergeState(values map[string]any) map[string]Change {
	return c.MergeStateContext(context.Background(), values)
}

// MergeStateContext merges values into the state, notifies the observers of
// every changed key with (new, old) and emits EventStateChange with the diff,
// forwarding ctx to the event bus. A panicking observer is logged and does
// not affect the others or the merge. It returns the diff, which is empty
// when nothing changed.
func (c *Component) MergeStateContext(ctx context.Context, values map[string]any) map[string]Change {
	if c.destroyed.Load() {
		c.logger.Warn("state update ignored: component destroyed")
		return nil
	}

	c.stateMu.Lock()
	diff := make(map[string]Change)
	notify := make(map[string][]observerEntry)
	for key, value := range values {
		old, had := c.state[key]
		if had && reflect.DeepEqual(old, value) {
			continue
		}
		c.state[key] = value
		diff[key] = Change{Old: old, New: value}
		if obs := c.observers[key]; len(obs) > 0 {
			notify[key] = append([]observerEntry(nil), obs...)
		}
	}
	c.stateMu.Unlock()

	if len(diff) == 0 {
		return diff
	}

	keys := make([]string, 0, len(notify))
	for key := range notify {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		change := diff[key]
		for _, entry := range notify[key] {
			if err := callObserver(entry.fn, change); err != nil {
				c.logger.Error("state observer failed",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}

	c.emit(ctx, EventStateChange, diff, false)
	return diff
}

func callObserver(fn Observer, change Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	fn(change.New, change.Old)
	return nil
}

// Observe registers fn for changes of key and returns its remover
func (c *Component) Observe(key string, fn Observer) func() {
	c.stateMu.Lock()
	c.nextObs++
	id := c.nextObs
	c.observers[key] = append(c.observers[key], observerEntry{id: id, fn: fn})
	c.stateMu.Unlock()

	return func() {
		c.stateMu.Lock()
		defer c.stateMu.Unlock()

		entries := c.observers[key]
		for i, entry := range entries {
			if entry.id == id {
				entries = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(entries) == 0 {
			delete(c.observers, key)
		} else {
			c.observers[key] = entries
		}
	}
}

// ObserverCount returns the number of observers registered for key
func (c *Component) ObserverCount(key string) int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return len(c.observers[key])
}

func (c *Component) clearObservers() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.observers = make(map[string][]observerEntry)
}
