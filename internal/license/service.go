package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service applies license lifecycle intents to the record store. All
// cross-request coordination is delegated to the store's atomic single-record
// operations; the service itself holds no mutable state.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMetrics attaches operation metrics to the service
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the service clock, used in tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a license service backed by the given store
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.With(slog.String("component", "license_service")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a new license record in the unbound valid state. The key and
// email are required; licenseType is an optional classification fixed at
// creation.
func (s *Service) Issue(ctx context.Context, key, email, licenseType string) (*Record, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(email) == "" {
		return nil, ErrInvalidInput
	}

	rec := &Record{
		LicenseKey:   key,
		Email:        email,
		LicenseType:  licenseType,
		Valid:        true,
		BoundDevices: []string{},
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.recordIssued(ctx)
	s.logger.InfoContext(ctx, "license issued",
		slog.String("license_key", MaskKey(key)),
		slog.String("license_type", licenseType))

	return rec, nil
}

// Validate applies the device-binding state machine for a single validation
// request. A request from the bound device succeeds and refreshes lastUsedAt;
// a request from a second device revokes the license permanently. The
// check-then-act sequence is safe under concurrency because every mutation is
// a conditional single-record update: of N racing validations from distinct
// devices against a fresh license, exactly one binds and the rest revoke.
func (s *Service) Validate(ctx context.Context, key, deviceID, requiredType string) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(deviceID) == "" {
		return ErrInvalidInput
	}

	ctx, span := otel.Tracer("license-service").Start(ctx, "license_service.validate",
		trace.WithAttributes(
			attribute.String("license.key_prefix", MaskKey(key)),
			attribute.String("license.required_type", requiredType),
		),
	)
	defer span.End()

	rec, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.recordValidation(ctx, "not_found")
		return err
	}
	if !rec.Valid {
		s.metrics.recordValidation(ctx, "revoked")
		return ErrRevoked
	}
	if requiredType != "" && rec.LicenseType != requiredType {
		s.metrics.recordValidation(ctx, "type_mismatch")
		return ErrTypeMismatch
	}

	now := s.now().UTC()

	// Same-device re-validation is idempotent: refresh the timestamp and done.
	matched, err := s.store.TouchDevice(ctx, key, deviceID, now)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	if matched {
		span.SetAttributes(attribute.String("license.result", "revalidated"))
		s.metrics.recordValidation(ctx, "success")
		return nil
	}

	// Device not bound yet; claim the free capacity if there is any.
	matched, err = s.store.BindDevice(ctx, key, deviceID, now)
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	if matched {
		span.SetAttributes(attribute.String("license.result", "bound"))
		s.metrics.recordValidation(ctx, "success")
		s.logger.InfoContext(ctx, "device bound to license",
			slog.String("license_key", MaskKey(key)),
			slog.String("device_id", deviceID))
		return nil
	}

	// Capacity is held by a different device: kill the license. The offending
	// request fails, and so does every validation after it.
	matched, err = s.store.RevokeIfBoundElsewhere(ctx, key, deviceID)
	if err != nil {
		return fmt.Errorf("revoke license: %w", err)
	}
	if matched {
		span.SetAttributes(attribute.String("license.result", "self_revoked"))
		s.metrics.recordValidation(ctx, "revoked")
		s.metrics.recordRevocation(ctx, "device_sharing")
		s.logger.WarnContext(ctx, "license revoked after validation from second device",
			slog.String("license_key", MaskKey(key)),
			slog.String("device_id", deviceID))
		return ErrRevoked
	}

	// None of the conditional updates matched: the record was revoked or
	// deleted by a concurrent request between the read and the updates.
	if _, err := s.store.Get(ctx, key); err != nil {
		s.metrics.recordValidation(ctx, "not_found")
		return err
	}
	s.metrics.recordValidation(ctx, "revoked")
	return ErrRevoked
}

// Revoke explicitly invalidates a license. Revoking an already-invalid
// license is reported as an error, not a no-op.
func (s *Service) Revoke(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}

	matched, err := s.store.Revoke(ctx, key)
	if err != nil {
		return err
	}
	if !matched {
		if _, err := s.store.Get(ctx, key); err != nil {
			return err
		}
		return ErrAlreadyRevoked
	}

	s.metrics.recordRevocation(ctx, "manual")
	s.logger.InfoContext(ctx, "license revoked",
		slog.String("license_key", MaskKey(key)))

	return nil
}

// Reactivate restores a license to the valid state. When clearDevices is set
// the bound device list is emptied, freeing the device capacity; this is the
// only way to free capacity without deleting the record. Reactivating an
// already-valid license is accepted silently.
func (s *Service) Reactivate(ctx context.Context, key string, clearDevices bool) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}

	if err := s.store.Reactivate(ctx, key, clearDevices); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "license reactivated",
		slog.String("license_key", MaskKey(key)),
		slog.Bool("devices_cleared", clearDevices))

	return nil
}

// Delete removes a license record permanently
func (s *Service) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "license deleted",
		slog.String("license_key", MaskKey(key)))

	return nil
}

// List returns all records, optionally filtered by license type, ordered by
// lastUsedAt descending with never-used records last.
func (s *Service) List(ctx context.Context, licenseType string) ([]Record, error) {
	return s.store.List(ctx, licenseType)
}

// Summary returns aggregate license counts
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	return s.store.Summary(ctx)
}

// MaskKey masks a license key for logging; full keys never reach the logs
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
