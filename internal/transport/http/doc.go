// Package http contains the HTTP handlers for the license API. Handlers
// decode and validate payloads, call the license service, and map domain
// errors to structured JSON responses.
package http
