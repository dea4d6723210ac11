package license

import (
	"context"
	"time"
)

// Store is the persistence contract for license records. Implementations must
// provide atomic single-record semantics: each of the conditional device
// operations observes and mutates one record in a single step, so concurrent
// validations against the same key cannot both see spare capacity.
type Store interface {
	// Insert creates a new record. Returns ErrAlreadyExists when a record with
	// the same license key is present.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// TouchDevice updates lastUsedAt when the record is valid and the device is
	// already bound. Returns false when no such record matched.
	TouchDevice(ctx context.Context, key, deviceID string, at time.Time) (bool, error)

	// BindDevice appends the device and sets lastUsedAt when the record is
	// valid and has no bound devices. Returns false when no such record matched.
	BindDevice(ctx context.Context, key, deviceID string, at time.Time) (bool, error)

	// RevokeIfBoundElsewhere clears the valid flag when the record is valid,
	// has at least one bound device, and the given device is not among them.
	// Returns false when no such record matched.
	RevokeIfBoundElsewhere(ctx context.Context, key, deviceID string) (bool, error)

	// Revoke clears the valid flag when the record is currently valid. Returns
	// false when the record is absent or already invalid.
	Revoke(ctx context.Context, key string) (bool, error)

	// Reactivate sets the valid flag, optionally clearing bound devices.
	// Returns ErrNotFound when the record is absent.
	Reactivate(ctx context.Context, key string, clearDevices bool) error

	// Delete removes the record permanently. Returns ErrNotFound when absent.
	Delete(ctx context.Context, key string) error

	// List returns records ordered by lastUsedAt descending, optionally
	// filtered by license type. Records without lastUsedAt sort last.
	List(ctx context.Context, licenseType string) ([]Record, error)

	// Summary returns aggregate counts over all records.
	Summary(ctx context.Context) (*Summary, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close(ctx context.Context) error
}
