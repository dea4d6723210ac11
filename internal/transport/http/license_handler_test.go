package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/savingscode/license-server/internal/license"
	"github.com/savingscode/license-server/internal/store"
)

// MockLicenseService implements the LicenseService interface for testing
type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Issue(ctx context.Context, key, email, licenseType string) (*license.Record, error) {
	args := m.Called(ctx, key, email, licenseType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*license.Record), args.Error(1)
}

func (m *MockLicenseService) Validate(ctx context.Context, key, deviceID, requiredType string) error {
	args := m.Called(ctx, key, deviceID, requiredType)
	return args.Error(0)
}

func (m *MockLicenseService) Revoke(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLicenseService) Reactivate(ctx context.Context, key string, clearDevices bool) error {
	args := m.Called(ctx, key, clearDevices)
	return args.Error(0)
}

func (m *MockLicenseService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLicenseService) List(ctx context.Context, licenseType string) ([]license.Record, error) {
	args := m.Called(ctx, licenseType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]license.Record), args.Error(1)
}

func (m *MockLicenseService) Summary(ctx context.Context) (*license.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*license.Summary), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(service LicenseService) *chi.Mux {
	r := chi.NewRouter()
	handler := NewLicenseHandler(service, testLogger())
	handler.Register(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			body:       map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing license key",
			body:       map[string]string{"deviceId": "dev1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_PARAMETER",
		},
		{
			name:       "missing device id",
			body:       map[string]string{"licenseKey": "KEY1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_PARAMETER",
		},
		{
			name:       "unknown key reads as invalid license",
			body:       map[string]string{"licenseKey": "NOPE", "deviceId": "dev1"},
			serviceErr: license.ErrNotFound,
			wantStatus: http.StatusForbidden,
			wantCode:   "INVALID_LICENSE",
		},
		{
			name:       "revoked license",
			body:       map[string]string{"licenseKey": "KEY1", "deviceId": "dev2"},
			serviceErr: license.ErrRevoked,
			wantStatus: http.StatusForbidden,
			wantCode:   "LICENSE_REVOKED",
		},
		{
			name:       "type mismatch",
			body:       map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"},
			serviceErr: license.ErrTypeMismatch,
			wantStatus: http.StatusForbidden,
			wantCode:   "LICENSE_TYPE_MISMATCH",
		},
		{
			name:       "store failure yields generic server error",
			body:       map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"},
			serviceErr: errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockLicenseService{}
			service.On("Validate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(tt.serviceErr).Maybe()

			rec := doJSON(t, newTestRouter(service), http.MethodPost, "/validate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var payload map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, payload["success"])
			} else {
				assert.Equal(t, false, payload["success"])
				assert.Equal(t, tt.wantCode, payload["error_code"])
			}
		})
	}
}

func TestValidateEndpointPassesTypeQueryParam(t *testing.T) {
	service := &MockLicenseService{}
	service.On("Validate", mock.Anything, "KEY1", "dev1", "sender").Return(nil)

	rec := doJSON(t, newTestRouter(service), http.MethodPost, "/validate?type=sender",
		map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestGenerateEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			body:       map[string]string{"email": "a@x.com", "licenseKey": "KEY1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing email",
			body:       map[string]string{"licenseKey": "KEY1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_PARAMETER",
		},
		{
			name:       "invalid email",
			body:       map[string]string{"email": "not-an-email", "licenseKey": "KEY1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMETER",
		},
		{
			name:       "duplicate key",
			body:       map[string]string{"email": "a@x.com", "licenseKey": "KEY1"},
			serviceErr: license.ErrAlreadyExists,
			wantStatus: http.StatusConflict,
			wantCode:   "LICENSE_EXISTS",
		},
		{
			name:       "store failure",
			body:       map[string]string{"email": "a@x.com", "licenseKey": "KEY1"},
			serviceErr: errors.New("write concern failure"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockLicenseService{}
			var ret *license.Record
			if tt.serviceErr == nil {
				ret = &license.Record{LicenseKey: "KEY1"}
			}
			service.On("Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(ret, tt.serviceErr).Maybe()

			rec := doJSON(t, newTestRouter(service), http.MethodPost, "/generate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var payload map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
				assert.Equal(t, tt.wantCode, payload["error_code"])
			}
		})
	}
}

func TestRevokeEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "not found", serviceErr: license.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "LICENSE_NOT_FOUND"},
		{name: "already revoked", serviceErr: license.ErrAlreadyRevoked, wantStatus: http.StatusBadRequest, wantCode: "ALREADY_REVOKED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockLicenseService{}
			service.On("Revoke", mock.Anything, "KEY1").Return(tt.serviceErr)

			rec := doJSON(t, newTestRouter(service), http.MethodPost, "/licenses/revoke",
				map[string]string{"licenseKey": "KEY1"})

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRevokeEndpointMissingKey(t *testing.T) {
	service := &MockLicenseService{}

	rec := doJSON(t, newTestRouter(service), http.MethodPost, "/licenses/revoke", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "Revoke")
}

func TestReactivateEndpoint(t *testing.T) {
	service := &MockLicenseService{}
	service.On("Reactivate", mock.Anything, "KEY1", true).Return(nil)

	rec := doJSON(t, newTestRouter(service), http.MethodPost, "/licenses/reactivate",
		map[string]any{"licenseKey": "KEY1", "clearDevices": true})

	assert.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestDeleteEndpoint(t *testing.T) {
	service := &MockLicenseService{}
	service.On("Delete", mock.Anything, "KEY1").Return(license.ErrNotFound)

	rec := doJSON(t, newTestRouter(service), http.MethodPost, "/licenses/delete",
		map[string]string{"licenseKey": "KEY1"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	service := &MockLicenseService{}
	service.On("Summary", mock.Anything).
		Return(&license.Summary{Total: 10, Valid: 7, Revoked: 3}, nil)

	rec := doJSON(t, newTestRouter(service), http.MethodGet, "/licenses/summary", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var summary license.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(10), summary.Total)
	assert.Equal(t, int64(7), summary.Valid)
	assert.Equal(t, int64(3), summary.Revoked)
}

func TestListEndpoint(t *testing.T) {
	service := &MockLicenseService{}
	service.On("List", mock.Anything, "").
		Return([]license.Record{{LicenseKey: "KEY1"}, {LicenseKey: "KEY2"}}, nil)
	service.On("List", mock.Anything, "sender").
		Return([]license.Record{{LicenseKey: "KEY1", LicenseType: "sender"}}, nil)

	router := newTestRouter(service)

	rec := doJSON(t, router, http.MethodGet, "/licenses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []license.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	rec = doJSON(t, router, http.MethodGet, "/licenses/sender", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

// TestLicenseLifecycleEndToEnd drives the full device-binding flow through
// the real service and the in-memory store.
func TestLicenseLifecycleEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	svc := license.NewService(st, testLogger())
	router := newTestRouter(svc)

	// Issue
	rec := doJSON(t, router, http.MethodPost, "/generate",
		map[string]string{"email": "a@x.com", "licenseKey": "KEY1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// First device binds
	rec = doJSON(t, router, http.MethodPost, "/validate",
		map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Second device revokes
	rec = doJSON(t, router, http.MethodPost, "/validate",
		map[string]string{"licenseKey": "KEY1", "deviceId": "dev2"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Original device is locked out too
	rec = doJSON(t, router, http.MethodPost, "/validate",
		map[string]string{"licenseKey": "KEY1", "deviceId": "dev1"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Reactivate with a cleared device list
	rec = doJSON(t, router, http.MethodPost, "/licenses/reactivate",
		map[string]any{"licenseKey": "KEY1", "clearDevices": true})
	require.Equal(t, http.StatusOK, rec.Code)

	// A new device can claim the freed capacity
	rec = doJSON(t, router, http.MethodPost, "/validate",
		map[string]string{"licenseKey": "KEY1", "deviceId": "dev3"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Summary reflects one valid license
	rec = doJSON(t, router, http.MethodGet, "/licenses/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary license.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.Total)
	assert.Equal(t, int64(1), summary.Valid)
}
