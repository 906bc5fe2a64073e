package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crummey/internal/notice/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/platform/httputil"
	"crummey/pkg/platform/secrets"
	"crummey/pkg/requestcontext"
)

// WebhookSecretHeader carries the shared secret on delivery callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// Service defines the notice operations the handler needs.
type Service interface {
	List(ctx context.Context, filter models.ListFilter) ([]*models.Notice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Notice, error)
	Send(ctx context.Context, ids []uuid.UUID) (*models.SendResult, error)
	Requeue(ctx context.Context, id uuid.UUID) (*models.Notice, error)
	GetByToken(ctx context.Context, token string) (*models.Summary, error)
	Acknowledge(ctx context.Context, token, signatureName string) (*models.Receipt, error)
	ApplyDeliveryEvent(ctx context.Context, messageID string, event models.DeliveryEvent) (*models.Notice, error)
}

// Handler exposes the notice lifecycle: owner operations, the public
// acknowledgment page and the dispatcher's delivery webhook.
type Handler struct {
	service           Service
	logger            *slog.Logger
	webhookSecretHash string
}

type Option func(*Handler)

// WithWebhookSecretHash enables the delivery webhook. Callers must present the
// bcrypt-hashed secret in WebhookSecretHeader.
func WithWebhookSecretHash(hash string) Option {
	return func(h *Handler) {
		h.webhookSecretHash = hash
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts owner endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Route("/notices", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/send", h.HandleSend)
		r.Get("/{noticeID}", h.HandleGet)
		r.Post("/{noticeID}/requeue", h.HandleRequeue)
	})
}

// RegisterPublic mounts the token-authenticated acknowledgment endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/acknowledge/{token}", h.HandleGetAcknowledgment)
	r.Post("/acknowledge/{token}", h.HandleAcknowledge)
}

// RegisterWebhook mounts the dispatcher delivery callback.
func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/webhooks/delivery", h.HandleDeliveryEvent)
}

// HandleList returns the caller's notices. trust_id, status and
// contribution_id filters are optional and combine with AND.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	notices, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list notices", err)
		return
	}
	if notices == nil {
		notices = []*models.Notice{}
	}
	httputil.WriteJSON(w, http.StatusOK, notices)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to get notice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

// HandleSend dispatches the selected pending notices. Per-notice failures are
// reported in the body with status 200.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Send(ctx, req.IDs())
	if err != nil {
		h.fail(w, r, "failed to send notices", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleRequeue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	n, err := h.service.Requeue(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to requeue notice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

// HandleGetAcknowledgment returns the public summary behind a token.
func (h *Handler) HandleGetAcknowledgment(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, "failed to load acknowledgment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleAcknowledge records the signer. Repeat submissions return the
// original receipt.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.AcknowledgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.service.Acknowledge(ctx, chi.URLParam(r, "token"), req.SignatureName)
	if err != nil {
		h.fail(w, r, "failed to acknowledge notice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// HandleDeliveryEvent applies a delivered or bounced callback.
func (h *Handler) HandleDeliveryEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.verifyWebhook(r); err != nil {
		h.fail(w, r, "rejected delivery webhook", err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.DeliveryEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	n, err := h.service.ApplyDeliveryEvent(ctx, req.MessageID, models.DeliveryEvent(req.Event))
	if err != nil {
		h.fail(w, r, "failed to apply delivery event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"notice_id": n.ID,
		"status":    n.Status,
	})
}

func (h *Handler) verifyWebhook(r *http.Request) error {
	if h.webhookSecretHash == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "delivery webhook is not configured")
	}
	secret := r.Header.Get(WebhookSecretHeader)
	if secret == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "missing webhook secret")
	}
	if err := secrets.Verify(secret, h.webhookSecretHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify webhook secret")
	}
	return nil
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	var filter models.ListFilter
	if raw := strings.TrimSpace(q.Get("trust_id")); raw != "" {
		id, err := domain.ParseID("trust_id", raw)
		if err != nil {
			return filter, err
		}
		filter.TrustID = &id
	}
	if raw := strings.TrimSpace(q.Get("contribution_id")); raw != "" {
		id, err := domain.ParseID("contribution_id", raw)
		if err != nil {
			return filter, err
		}
		filter.ContributionID = &id
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := models.ParseStatus("status", raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	return filter, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parsed, err := domain.ParseID("notice_id", chi.URLParam(r, "noticeID"))
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
