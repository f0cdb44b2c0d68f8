package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vcengine/internal/license"
)

// HealthHandler reports engine health.
type HealthHandler struct {
	manager *license.Manager
	version string
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(manager *license.Manager, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		manager: manager,
		version: version,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the chi router for health endpoints.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetHealth)
	return r
}

// GetHealth handles GET /api/health. Degraded components still return
// 200: the engine keeps serving off the verdict cache.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Health(r.Context())

	response := struct {
		*license.HealthReport
		Version string `json:"version"`
	}{
		HealthReport: report,
		Version:      h.version,
	}
	render.JSON(w, r, response)
}
