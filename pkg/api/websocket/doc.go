// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/events/ws?pattern=<pattern>&replay=<n> to
// receive the bus events matching pattern as JSON text frames, optionally
// preceded by the last n recorded events.
package websocket
