package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/savingscode/license-server/internal/license"
)

// MemoryStore is an in-memory license store for tests and local development.
// A single mutex serializes all record access, which gives the same per-record
// atomicity the mongo implementation gets from single-document updates.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*license.Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*license.Record),
	}
}

// Insert creates a new record, failing on a duplicate license key
func (s *MemoryStore) Insert(_ context.Context, rec *license.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.LicenseKey]; ok {
		return license.ErrAlreadyExists
	}
	s.records[rec.LicenseKey] = cloneRecord(rec)
	return nil
}

// Get returns a copy of the record for the key
func (s *MemoryStore) Get(_ context.Context, key string) (*license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// TouchDevice refreshes lastUsedAt for a valid record already bound to the device
func (s *MemoryStore) TouchDevice(_ context.Context, key, deviceID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Valid || !rec.HasDevice(deviceID) {
		return false, nil
	}
	t := at
	rec.LastUsedAt = &t
	return true, nil
}

// BindDevice appends the device to a valid record with spare capacity
func (s *MemoryStore) BindDevice(_ context.Context, key, deviceID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Valid || len(rec.BoundDevices) >= license.DeviceCapacity {
		return false, nil
	}
	rec.BoundDevices = append(rec.BoundDevices, deviceID)
	t := at
	rec.LastUsedAt = &t
	return true, nil
}

// RevokeIfBoundElsewhere invalidates a valid record whose capacity is held by
// a different device
func (s *MemoryStore) RevokeIfBoundElsewhere(_ context.Context, key, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Valid || len(rec.BoundDevices) == 0 || rec.HasDevice(deviceID) {
		return false, nil
	}
	rec.Valid = false
	return true, nil
}

// Revoke invalidates a currently valid record
func (s *MemoryStore) Revoke(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Valid {
		return false, nil
	}
	rec.Valid = false
	return true, nil
}

// Reactivate marks the record valid, optionally clearing bound devices
func (s *MemoryStore) Reactivate(_ context.Context, key string, clearDevices bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return license.ErrNotFound
	}
	rec.Valid = true
	if clearDevices {
		rec.BoundDevices = []string{}
	}
	return nil
}

// Delete removes the record permanently
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return license.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns records sorted by lastUsedAt descending, never-used last,
// license key as tie-break
func (s *MemoryStore) List(_ context.Context, licenseType string) ([]license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []license.Record{}
	for _, rec := range s.records {
		if licenseType != "" && rec.LicenseType != licenseType {
			continue
		}
		records = append(records, *cloneRecord(rec))
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].LastUsedAt, records[j].LastUsedAt
		switch {
		case a == nil && b == nil:
			return records[i].LicenseKey < records[j].LicenseKey
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		default:
			return records[i].LicenseKey < records[j].LicenseKey
		}
	})

	return records, nil
}

// Summary returns aggregate counts over all records
func (s *MemoryStore) Summary(_ context.Context) (*license.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &license.Summary{Total: int64(len(s.records))}
	for _, rec := range s.records {
		if rec.Valid {
			summary.Valid++
		} else {
			summary.Revoked++
		}
	}
	return summary, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func cloneRecord(rec *license.Record) *license.Record {
	clone := *rec
	clone.BoundDevices = append([]string{}, rec.BoundDevices...)
	if rec.LastUsedAt != nil {
		t := *rec.LastUsedAt
		clone.LastUsedAt = &t
	}
	return &clone
}
