// Package http provides the inspector HTTP API.
//
// The HTTP server exposes endpoints for:
//   - Health checks reflecting the orchestrator state
//   - Prometheus metrics
//   - Registered modules and captured errors
//   - Event bus history and listeners
//   - Storage namespaces, keys and values
package http
