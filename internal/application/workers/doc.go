// Package workers runs the runtime's background work.
//
// The worker pool executes deferred tasks, such as deferred event publishes,
// on a fixed number of goroutines. The health monitor logs the pool status
// and reports the backlog as a metric. The sweeper periodically drops
// expired entries from the registered storages.
package workers
