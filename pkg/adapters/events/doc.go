// Package events provides event bus adapters.
//
// Implementations:
//   - redis: mirrors bus events into a Redis Stream and reads them back,
//     alone or through consumer groups
package events
