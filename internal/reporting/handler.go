package reporting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
)

// Handler wires HTTP endpoints for reporting.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/dashboard", h.dashboard)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}
