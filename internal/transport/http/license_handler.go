package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/savingscode/license-server/internal/errors"
	"github.com/savingscode/license-server/internal/license"
	"github.com/savingscode/license-server/internal/middleware"
)

// validate is the shared request validator instance
var validate = validator.New()

// LicenseService is the contract the handler needs from the state machine
type LicenseService interface {
	Issue(ctx context.Context, key, email, licenseType string) (*license.Record, error)
	Validate(ctx context.Context, key, deviceID, requiredType string) error
	Revoke(ctx context.Context, key string) error
	Reactivate(ctx context.Context, key string, clearDevices bool) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, licenseType string) ([]license.Record, error)
	Summary(ctx context.Context) (*license.Summary, error)
}

// LicenseHandler handles license lifecycle HTTP requests
type LicenseHandler struct {
	service LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Register mounts the license endpoints on the router
func (h *LicenseHandler) Register(r chi.Router) {
	r.Post("/validate", h.Validate)
	r.Post("/generate", h.Generate)

	r.Route("/licenses", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/summary", h.Summary)
		r.Get("/{licenseType}", h.List)
		r.Post("/revoke", h.Revoke)
		r.Post("/reactivate", h.Reactivate)
		r.Post("/delete", h.Delete)
	})
}

// ValidateRequest is the payload for POST /validate
type ValidateRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	DeviceID   string `json:"deviceId" validate:"required"`
}

// Bind implements the render.Binder interface
func (v *ValidateRequest) Bind(*http.Request) error {
	return validate.Struct(v)
}

// GenerateRequest is the payload for POST /generate
type GenerateRequest struct {
	Email       string `json:"email" validate:"required,email"`
	LicenseKey  string `json:"licenseKey" validate:"required"`
	LicenseType string `json:"licenseType,omitempty"`
}

// Bind implements the render.Binder interface
func (g *GenerateRequest) Bind(*http.Request) error {
	return validate.Struct(g)
}

// KeyRequest is the payload for the revoke and delete endpoints
type KeyRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
}

// Bind implements the render.Binder interface
func (k *KeyRequest) Bind(*http.Request) error {
	return validate.Struct(k)
}

// ReactivateRequest is the payload for POST /licenses/reactivate
type ReactivateRequest struct {
	LicenseKey   string `json:"licenseKey" validate:"required"`
	ClearDevices bool   `json:"clearDevices,omitempty"`
}

// Bind implements the render.Binder interface
func (rr *ReactivateRequest) Bind(*http.Request) error {
	return validate.Struct(rr)
}

// StatusResponse is the success envelope for mutation endpoints
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Render implements the render.Renderer interface
func (s *StatusResponse) Render(http.ResponseWriter, *http.Request) error {
	return nil
}

// Validate handles POST /validate. The optional `type` query parameter scopes
// validation to records of that license type.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/validate"),
			attribute.String("request_id", middleware.GetReqID(ctx)),
		),
	)
	defer span.End()

	data := &ValidateRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		h.renderBindError(w, r, err)
		return
	}

	requiredType := r.URL.Query().Get("type")
	span.SetAttributes(attribute.String("license.key_prefix", license.MaskKey(data.LicenseKey)))

	if err := h.service.Validate(ctx, data.LicenseKey, data.DeviceID, requiredType); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("license.result", "failure"))
		h.renderDomainError(w, r, err, true)
		return
	}

	span.SetAttributes(attribute.String("license.result", "success"))
	render.Render(w, r, &StatusResponse{Success: true, Message: "License valid"})
}

// Generate handles POST /generate
func (h *LicenseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &GenerateRequest{}
	if err := render.Bind(r, data); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	if _, err := h.service.Issue(ctx, data.LicenseKey, data.Email, data.LicenseType); err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.Render(w, r, &StatusResponse{Success: true, Message: "License generated"})
}

// Summary handles GET /licenses/summary
func (h *LicenseHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.JSON(w, r, summary)
}

// List handles GET /licenses and GET /licenses/{licenseType}
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	licenseType := chi.URLParam(r, "licenseType")

	records, err := h.service.List(r.Context(), licenseType)
	if err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.JSON(w, r, records)
}

// Revoke handles POST /licenses/revoke
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	data := &KeyRequest{}
	if err := render.Bind(r, data); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	if err := h.service.Revoke(r.Context(), data.LicenseKey); err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.Render(w, r, &StatusResponse{Success: true, Message: "License revoked"})
}

// Reactivate handles POST /licenses/reactivate
func (h *LicenseHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	data := &ReactivateRequest{}
	if err := render.Bind(r, data); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	if err := h.service.Reactivate(r.Context(), data.LicenseKey, data.ClearDevices); err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.Render(w, r, &StatusResponse{Success: true, Message: "License reactivated"})
}

// Delete handles POST /licenses/delete
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	data := &KeyRequest{}
	if err := render.Bind(r, data); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), data.LicenseKey); err != nil {
		h.renderDomainError(w, r, err, false)
		return
	}

	render.Render(w, r, &StatusResponse{Success: true, Message: "License deleted"})
}

// renderBindError maps request decode and validation failures to 400 responses
func (h *LicenseHandler) renderBindError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "invalid request",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := jsonFieldName(verrs[0].Field())
		if verrs[0].Tag() == "email" {
			render.Render(w, r, apierrors.New(http.StatusBadRequest, "INVALID_PARAMETER", field+" is not a valid email address"))
			return
		}
		render.Render(w, r, apierrors.MissingField(field))
		return
	}

	render.Render(w, r, apierrors.ErrInvalidRequest)
}

// renderDomainError maps state machine errors to HTTP responses. Unknown
// license keys on the validation path read as an invalid license (403), not a
// 404, so callers cannot probe for key existence.
func (h *LicenseHandler) renderDomainError(w http.ResponseWriter, r *http.Request, err error, forValidation bool) {
	switch {
	case errors.Is(err, license.ErrInvalidInput):
		render.Render(w, r, apierrors.New(http.StatusBadRequest, "MISSING_PARAMETER", "Required field is missing"))

	case errors.Is(err, license.ErrNotFound):
		if forValidation {
			render.Render(w, r, apierrors.New(http.StatusForbidden, "INVALID_LICENSE", "Invalid license"))
			return
		}
		render.Render(w, r, apierrors.New(http.StatusNotFound, "LICENSE_NOT_FOUND", "License not found"))

	case errors.Is(err, license.ErrRevoked):
		render.Render(w, r, apierrors.New(http.StatusForbidden, "LICENSE_REVOKED", "License has been revoked"))

	case errors.Is(err, license.ErrTypeMismatch):
		render.Render(w, r, apierrors.New(http.StatusForbidden, "LICENSE_TYPE_MISMATCH", "License type does not match"))

	case errors.Is(err, license.ErrAlreadyExists):
		render.Render(w, r, apierrors.New(http.StatusConflict, "LICENSE_EXISTS", "License key already exists"))

	case errors.Is(err, license.ErrAlreadyRevoked):
		render.Render(w, r, apierrors.New(http.StatusBadRequest, "ALREADY_REVOKED", "License is already revoked"))

	default:
		// Store and other unexpected failures: log the detail, return a
		// generic server error.
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrServer)
	}
}

// jsonFieldName converts a struct field name to its JSON form for error messages
func jsonFieldName(field string) string {
	switch field {
	case "LicenseKey":
		return "licenseKey"
	case "DeviceID":
		return "deviceId"
	case "LicenseType":
		return "licenseType"
	case "ClearDevices":
		return "clearDevices"
	default:
		return strings.ToLower(field[:1]) + field[1:]
	}
}
