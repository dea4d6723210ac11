package license

import "time"

// DeviceCapacity is the number of devices a valid license may be bound to.
// Validation traffic from a device beyond this capacity revokes the license.
const DeviceCapacity = 1

// State describes the lifecycle position of a license record
type State string

const (
	// StateUnboundValid is a valid license with no bound devices
	StateUnboundValid State = "unbound_valid"
	// StateBoundValid is a valid license bound to a device
	StateBoundValid State = "bound_valid"
	// StateRevoked is an invalidated license; only explicit reactivation escapes it
	StateRevoked State = "revoked"
)

// Record is a license record as persisted in the store. LicenseKey and Email
// are immutable after creation; LicenseType, when set at creation, is fixed
// for the life of the record.
type Record struct {
	LicenseKey   string     `bson:"licenseKey" json:"licenseKey"`
	Email        string     `bson:"email" json:"email"`
	LicenseType  string     `bson:"licenseType,omitempty" json:"licenseType,omitempty"`
	Valid        bool       `bson:"valid" json:"valid"`
	BoundDevices []string   `bson:"boundDevices" json:"boundDevices"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	LastUsedAt   *time.Time `bson:"lastUsedAt,omitempty" json:"lastUsedAt,omitempty"`
}

// State returns the lifecycle state of the record
func (r *Record) State() State {
	if !r.Valid {
		return StateRevoked
	}
	if len(r.BoundDevices) == 0 {
		return StateUnboundValid
	}
	return StateBoundValid
}

// HasDevice reports whether the device is already bound to the record
func (r *Record) HasDevice(deviceID string) bool {
	for _, d := range r.BoundDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// Summary holds aggregate counts over all license records
type Summary struct {
	Total   int64 `json:"total"`
	Valid   int64 `json:"valid"`
	Revoked int64 `json:"revoked"`
}
