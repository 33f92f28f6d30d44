// Package storage provides namespaced, TTL-aware key/value access over a
// pluggable backing (see pkg/adapters/storage).
//
// Every value is wrapped in an Item envelope recording when it was written
// and, optionally, when it expires. Expiry is enforced lazily: a read of an
// expired item deletes it and behaves as if it were absent. CleanExpired
// sweeps a whole namespace for hygiene.
//
// Storage never returns I/O errors to callers. An unusable backing is
// replaced by memory at construction, and failed writes, quota exhaustion
// and corrupt envelopes are reported through logs, return values and
// events published on the configured ports.Publisher.
package storage
