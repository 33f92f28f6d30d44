// Package ports declares the narrow interfaces shared between the runtime
// packages, so that storage, components and the orchestrator can announce
// events and record metrics without importing the concrete adapters.
package ports
