// Package store provides license.Store implementations: a MongoDB-backed
// store for production and an in-memory store for tests and local runs.
package store
