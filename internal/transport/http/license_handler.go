package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "vcengine/internal/errors"
	"vcengine/internal/license"
)

var validate = validator.New()

// LicenseHandler serves the license engine's HTTP surface.
type LicenseHandler struct {
	manager *license.Manager
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(manager *license.Manager, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		manager: manager,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the activation payload.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=9"`
}

// Bind implements render.Binder.
func (a *ActivationRequest) Bind(r *http.Request) error {
	if err := validate.Struct(a); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return errors.New("license_key is required and must be at least 9 characters")
		}
		return err
	}
	return nil
}

// StatusResponse is the envelope for status and activation responses.
type StatusResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	TraceID string      `json:"trace_id,omitempty"`
}

// Routes returns the chi router for license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Get("/detailed", h.GetDetailed)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)

	return r
}

// GetStatus handles GET /api/license/status.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	validateCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	result, err := h.manager.Validate(validateCtx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license status served",
		slog.String("request_id", reqID),
		slog.String("status", string(result.Status)),
	)
	render.JSON(w, r, StatusResponse{Success: true, Data: result, TraceID: reqID})
}

// GetDetailed handles GET /api/license/detailed.
func (h *LicenseHandler) GetDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	infoCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	info, err := h.manager.Info(infoCtx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Success: true, Data: info, TraceID: middleware.GetReqID(ctx)})
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	data := &ActivationRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.WarnContext(ctx, "activation request rejected",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	activateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := h.manager.Activate(activateCtx, data.LicenseKey)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !result.Success {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(http.StatusUnprocessableEntity, "ACTIVATION_FAILED", result.Message, nil)))
		return
	}

	h.logger.InfoContext(ctx, "license activated",
		slog.String("request_id", reqID),
		slog.String("license_key", license.MaskKey(data.LicenseKey)),
	)
	render.JSON(w, r, StatusResponse{Success: true, Data: result, TraceID: reqID})
}

// Deactivate handles POST /api/license/deactivate.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.manager.Deactivate(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Success: result.Success, Data: result, TraceID: middleware.GetReqID(ctx)})
}

// handleError maps engine errors to structured API errors and logs them.
func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	apiErr := mapError(err)
	h.logger.ErrorContext(ctx, "request failed",
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path),
		slog.String("error_code", apiErr.ErrorCode),
		slog.String("error", err.Error()),
	)
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

func mapError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.New(http.StatusGatewayTimeout, "TIMEOUT",
			"The request timed out while processing. Please try again.")
	case errors.Is(err, context.Canceled):
		return apierrors.New(http.StatusRequestTimeout, "REQUEST_CANCELED",
			"The request was canceled before completion.")
	default:
		return apierrors.MapLicenseError(err)
	}
}
