package license

import "errors"

// Domain errors surfaced by the state machine. The HTTP boundary maps these
// to status codes; anything else is treated as a store failure.
var (
	// ErrInvalidInput indicates a missing required field
	ErrInvalidInput = errors.New("missing required field")

	// ErrNotFound indicates no record exists for the license key
	ErrNotFound = errors.New("license not found")

	// ErrAlreadyExists indicates a duplicate license key on issuance
	ErrAlreadyExists = errors.New("license key already exists")

	// ErrAlreadyRevoked indicates a redundant revoke of an invalid license
	ErrAlreadyRevoked = errors.New("license already revoked")

	// ErrRevoked indicates validation against a revoked license, including the
	// request that triggered self-revocation
	ErrRevoked = errors.New("license revoked")

	// ErrTypeMismatch indicates the record's type does not match the required type
	ErrTypeMismatch = errors.New("license type mismatch")
)
