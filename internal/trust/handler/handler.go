package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crummey/internal/trust/models"
	"crummey/pkg/domain"
	"crummey/pkg/platform/httputil"
	"crummey/pkg/requestcontext"
)

// Service defines the trust operations the handler needs.
type Service interface {
	CreateTrust(ctx context.Context, req *models.CreateTrustRequest) (*models.Trust, error)
	ListTrusts(ctx context.Context) ([]*models.Trust, error)
	GetTrust(ctx context.Context, trustID uuid.UUID) (*models.Trust, error)
	UpdateTrust(ctx context.Context, trustID uuid.UUID, req *models.UpdateTrustRequest) (*models.Trust, error)
	DeactivateTrust(ctx context.Context, trustID uuid.UUID) (*models.Trust, error)
	AddBeneficiary(ctx context.Context, trustID uuid.UUID, req *models.CreateBeneficiaryRequest) (*models.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, trustID uuid.UUID) ([]*models.Beneficiary, error)
	UpdateBeneficiary(ctx context.Context, trustID, beneficiaryID uuid.UUID, req *models.UpdateBeneficiaryRequest) (*models.Beneficiary, error)
	DeactivateBeneficiary(ctx context.Context, trustID, beneficiaryID uuid.UUID) (*models.Beneficiary, error)
}

// Handler exposes trust and beneficiary management to authenticated owners.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts trust endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Route("/trusts", func(r chi.Router) {
		r.Post("/", h.HandleCreateTrust)
		r.Get("/", h.HandleListTrusts)
		r.Route("/{trustID}", func(r chi.Router) {
			r.Get("/", h.HandleGetTrust)
			r.Patch("/", h.HandleUpdateTrust)
			r.Post("/deactivate", h.HandleDeactivateTrust)
			r.Post("/beneficiaries", h.HandleAddBeneficiary)
			r.Get("/beneficiaries", h.HandleListBeneficiaries)
			r.Patch("/beneficiaries/{beneficiaryID}", h.HandleUpdateBeneficiary)
			r.Post("/beneficiaries/{beneficiaryID}/deactivate", h.HandleDeactivateBeneficiary)
		})
	})
}

func (h *Handler) HandleCreateTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateTrustRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	t, err := h.service.CreateTrust(ctx, req)
	if err != nil {
		h.fail(w, r, "failed to create trust", err)
		return
	}
	h.logger.InfoContext(ctx, "trust created",
		"request_id", requestID,
		"trust_id", t.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleListTrusts(w http.ResponseWriter, r *http.Request) {
	trusts, err := h.service.ListTrusts(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list trusts", err)
		return
	}
	if trusts == nil {
		trusts = []*models.Trust{}
	}
	httputil.WriteJSON(w, http.StatusOK, trusts)
}

func (h *Handler) HandleGetTrust(w http.ResponseWriter, r *http.Request) {
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	t, err := h.service.GetTrust(r.Context(), trustID)
	if err != nil {
		h.fail(w, r, "failed to get trust", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleUpdateTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateTrustRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.service.UpdateTrust(ctx, trustID, req)
	if err != nil {
		h.fail(w, r, "failed to update trust", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDeactivateTrust(w http.ResponseWriter, r *http.Request) {
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	t, err := h.service.DeactivateTrust(r.Context(), trustID)
	if err != nil {
		h.fail(w, r, "failed to deactivate trust", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleAddBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CreateBeneficiaryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.AddBeneficiary(ctx, trustID, req)
	if err != nil {
		h.fail(w, r, "failed to add beneficiary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) HandleListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	list, err := h.service.ListBeneficiaries(r.Context(), trustID)
	if err != nil {
		h.fail(w, r, "failed to list beneficiaries", err)
		return
	}
	if list == nil {
		list = []*models.Beneficiary{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleUpdateBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	beneficiaryID, ok := h.pathID(w, r, "beneficiaryID", "beneficiary_id")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateBeneficiaryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.UpdateBeneficiary(ctx, trustID, beneficiaryID, req)
	if err != nil {
		h.fail(w, r, "failed to update beneficiary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleDeactivateBeneficiary(w http.ResponseWriter, r *http.Request) {
	trustID, ok := h.pathID(w, r, "trustID", "trust_id")
	if !ok {
		return
	}
	beneficiaryID, ok := h.pathID(w, r, "beneficiaryID", "beneficiary_id")
	if !ok {
		return
	}
	b, err := h.service.DeactivateBeneficiary(r.Context(), trustID, beneficiaryID)
	if err != nil {
		h.fail(w, r, "failed to deactivate beneficiary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param, field string) (uuid.UUID, bool) {
	parsed, err := domain.ParseID(field, chi.URLParam(r, param))
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
