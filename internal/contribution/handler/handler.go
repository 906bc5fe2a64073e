package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crummey/internal/contribution/models"
	"crummey/internal/contribution/service"
	"crummey/pkg/domain"
	"crummey/pkg/platform/httputil"
	"crummey/pkg/requestcontext"
)

// Service defines the contribution operations the handler needs.
type Service interface {
	Create(ctx context.Context, req *models.CreateContributionRequest) (*service.Detail, error)
	List(ctx context.Context, trustID *uuid.UUID) ([]*models.Contribution, error)
	Get(ctx context.Context, id uuid.UUID) (*service.Detail, error)
	GenerateNotices(ctx context.Context, id uuid.UUID) (*service.Detail, error)
}

// Handler exposes contribution recording to authenticated owners.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts contribution endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Route("/contributions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{contributionID}", h.HandleGet)
		r.Post("/{contributionID}/generate-notices", h.HandleGenerateNotices)
	})
}

// HandleCreate records a contribution and returns it with its generated notices.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateContributionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	detail, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(w, r, "failed to create contribution", err)
		return
	}
	h.logger.InfoContext(ctx, "contribution created",
		"request_id", requestID,
		"contribution_id", detail.Contribution.ID,
		"notices", len(detail.Notices),
	)
	httputil.WriteJSON(w, http.StatusCreated, detail)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var trustID *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("trust_id")); raw != "" {
		parsed, err := domain.ParseID("trust_id", raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		trustID = &parsed
	}
	list, err := h.service.List(r.Context(), trustID)
	if err != nil {
		h.fail(w, r, "failed to list contributions", err)
		return
	}
	if list == nil {
		list = []*models.Contribution{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to get contribution", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleGenerateNotices re-drives generation for a contribution left without notices.
func (h *Handler) HandleGenerateNotices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GenerateNotices(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to generate notices", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parsed, err := domain.ParseID("contribution_id", chi.URLParam(r, "contributionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return uuid.Nil, false
	}
	return parsed, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err,
	)
	httputil.WriteError(w, err)
}
