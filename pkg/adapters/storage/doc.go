// Package storage provides the raw key/value backings used by pkg/storage.
//
// Implementations:
//   - memory: in-process map, optional byte quota (session scope and fallback)
//   - badger: embedded on-disk store (persistent scope)
//   - redis: shared Redis instance (persistent scope)
package storage
