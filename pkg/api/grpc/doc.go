// Package grpc exposes the standard gRPC health service for the page
// runtime. The overall status and the "pagekit.orchestrator" service follow
// the orchestrator's app:* lifecycle events.
package grpc
