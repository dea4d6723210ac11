// Package app wires the license server together: configuration, logging,
// telemetry, the record store, the state machine service, the HTTP router,
// and graceful shutdown.
package app
