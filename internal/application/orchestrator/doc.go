// Package orchestrator owns the page's named modules and drives them through
// a single application lifecycle.
//
// The manager:
//   - Registers modules with a priority, dependencies and an optional capability flag
//   - Validates the dependency graph before anything runs
//   - Initializes modules by descending priority in a bounded number of passes
//   - Tears them down by ascending priority
//   - Funnels errors raised outside the lifecycle into one bounded log
//
// Lifecycle transitions are published on the event bus as app:* and module:* events.
package orchestrator
