// Package license implements the license lifecycle state machine.
//
// A record moves between three states: unbound valid (no devices), bound
// valid (one device), and revoked. Issuance creates an unbound valid record.
// Validation from an unbound record binds the requesting device; validation
// from the bound device is idempotent; validation from any other device
// revokes the license permanently. Only an explicit reactivation intent,
// optionally clearing the device list, returns a revoked license to service.
//
// The package owns no persistence: it drives a Store whose conditional
// single-record updates carry the atomicity the state machine needs under
// concurrent validation traffic.
package license
