package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crummey/internal/dashboard/service"
	"crummey/pkg/platform/httputil"
	"crummey/pkg/requestcontext"
)

type Service interface {
	Summary(ctx context.Context) (*service.Summary, error)
}

// Handler serves the owner's dashboard summary.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the dashboard. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/dashboard", h.HandleSummary)
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to load dashboard",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
