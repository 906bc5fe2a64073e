package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	contributionmodels "crummey/internal/contribution/models"
	"crummey/internal/notice/dispatch"
	"crummey/internal/notice/metrics"
	"crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

var tracer = otel.Tracer("crummey/notice")

const (
	defaultDispatchTimeout = 30 * time.Second
	defaultSendConcurrency = 4
	defaultReminderWindow  = 7
)

// Store persists notices. Every mutation is a single-row conditional write;
// sentinel.ErrInvalidState reports a row that was not in the expected state.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notice, error)
	FindByToken(ctx context.Context, token string) (*models.Notice, error)
	FindByMessageID(ctx context.Context, messageID string) (*models.Notice, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Notice, error)
	ListReminderDue(ctx context.Context, from, until domain.Date) ([]*models.Notice, error)
	ClaimSend(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (*models.Notice, error)
	CompleteSend(ctx context.Context, id uuid.UUID, messageID string, at time.Time) (*models.Notice, error)
	FailSend(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	Acknowledge(ctx context.Context, id uuid.UUID, ack models.Acknowledgment) (*models.Notice, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.Status, at time.Time) (*models.Notice, error)
	ClaimReminder(ctx context.Context, id uuid.UUID, at time.Time) error
	ReleaseReminder(ctx context.Context, id uuid.UUID) error
}

type TrustReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*trustmodels.Trust, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*trustmodels.Trust, error)
}

type BeneficiaryReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*trustmodels.Beneficiary, error)
}

type ContributionReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*contributionmodels.Contribution, error)
}

// Ledger groups the read-only record stores a notice letter draws on.
type Ledger struct {
	Trusts        TrustReader
	Beneficiaries BeneficiaryReader
	Contributions ContributionReader
}

type Renderer interface {
	Notice(l dispatch.Letter) (models.Payload, error)
	Reminder(l dispatch.Letter, daysRemaining int) (models.Payload, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service is the notice lifecycle manager. It owns every transition after
// generation: send, delivery callbacks, requeue, acknowledgment and reminders.
type Service struct {
	notices         Store
	ledger          Ledger
	dispatcher      dispatch.Dispatcher
	renderer        Renderer
	logger          *slog.Logger
	auditor         AuditRecorder
	metrics         *metrics.Metrics
	dispatchTimeout time.Duration
	leaseDuration   time.Duration
	concurrency     int
	reminderWindow  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDispatchTimeout bounds each dispatcher call. The send lease outlives it
// by a margin so a slow call never overlaps a second sender.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// WithSendConcurrency caps parallel dispatcher calls within one batch.
func WithSendConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithReminderWindow sets how many days before the deadline reminders go out.
func WithReminderWindow(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.reminderWindow = days
		}
	}
}

func New(notices Store, ledger Ledger, dispatcher dispatch.Dispatcher, renderer Renderer, opts ...Option) *Service {
	s := &Service{
		notices:         notices,
		ledger:          ledger,
		dispatcher:      dispatcher,
		renderer:        renderer,
		logger:          slog.Default(),
		dispatchTimeout: defaultDispatchTimeout,
		concurrency:     defaultSendConcurrency,
		reminderWindow:  defaultReminderWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.leaseDuration = 2 * s.dispatchTimeout
	return s
}

// List returns the caller's notices matching filter. Filters naming a trust
// the caller does not own match nothing.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Notice, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := s.ownedTrusts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	filter.TrustIDs = trustIDs(owned)
	notices, err := s.notices.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notices")
	}
	return notices, nil
}

// Get returns one notice owned by the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Notice, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	n, _, err := s.ownedNotice(ctx, id, ownerID)
	return n, err
}

// Requeue returns a bounced notice to pending so it can be sent again.
func (s *Service) Requeue(ctx context.Context, id uuid.UUID) (*models.Notice, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	n, _, err := s.ownedNotice(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if n.Status != models.StatusBounced {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "only bounced notices can be requeued")
	}

	updated, err := s.notices.Transition(ctx, id, models.StatusBounced, models.StatusPending, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodePreconditionFailed, "only bounced notices can be requeued")
		}
		return nil, wrapNoticeErr(err)
	}
	s.observeTransition(models.StatusPending)
	s.record(ctx, audit.Actor(ownerID), audit.ActionNoticeRequeued, updated.ID, map[string]any{
		"trust_id": updated.TrustID.String(),
	})
	return updated, nil
}

// MarkDelivered applies a delivery callback. Only a sent notice moves; any
// other state is left untouched and returned as is.
func (s *Service) MarkDelivered(ctx context.Context, messageID string) (*models.Notice, error) {
	return s.applyDeliveryEvent(ctx, messageID, models.StatusDelivered, audit.ActionNoticeDelivered)
}

// MarkBounced applies a bounce callback with the same guard as MarkDelivered.
func (s *Service) MarkBounced(ctx context.Context, messageID string) (*models.Notice, error) {
	return s.applyDeliveryEvent(ctx, messageID, models.StatusBounced, audit.ActionNoticeBounced)
}

// ApplyDeliveryEvent routes a webhook event to MarkDelivered or MarkBounced.
func (s *Service) ApplyDeliveryEvent(ctx context.Context, messageID string, event models.DeliveryEvent) (*models.Notice, error) {
	switch event {
	case models.DeliveryEventDelivered:
		return s.MarkDelivered(ctx, messageID)
	case models.DeliveryEventBounced:
		return s.MarkBounced(ctx, messageID)
	default:
		return nil, dErrors.Field("event", "event must be one of delivered, bounced")
	}
}

func (s *Service) applyDeliveryEvent(ctx context.Context, messageID string, to models.Status, action audit.Action) (*models.Notice, error) {
	n, err := s.notices.FindByMessageID(ctx, messageID)
	if err != nil {
		return nil, wrapNoticeErr(err)
	}
	if n.Status != models.StatusSent {
		s.logger.InfoContext(ctx, "delivery event ignored",
			"request_id", requestcontext.RequestID(ctx),
			"notice_id", n.ID,
			"status", n.Status,
			"event", to,
		)
		return n, nil
	}

	updated, err := s.notices.Transition(ctx, n.ID, models.StatusSent, to, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return s.reload(ctx, n.ID)
		}
		return nil, wrapNoticeErr(err)
	}
	s.observeTransition(to)
	s.record(ctx, nil, action, updated.ID, map[string]any{
		"message_id": messageID,
	})
	return updated, nil
}

func (s *Service) ownedTrusts(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]*trustmodels.Trust, error) {
	trusts, err := s.ledger.Trusts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trusts")
	}
	owned := make(map[uuid.UUID]*trustmodels.Trust, len(trusts))
	for _, t := range trusts {
		owned[t.ID] = t
	}
	return owned, nil
}

// ownedNotice loads a notice and its trust, reporting another owner's notice
// as not found.
func (s *Service) ownedNotice(ctx context.Context, id, ownerID uuid.UUID) (*models.Notice, *trustmodels.Trust, error) {
	n, err := s.notices.FindByID(ctx, id)
	if err != nil {
		return nil, nil, wrapNoticeErr(err)
	}
	t, err := s.ledger.Trusts.FindByID(ctx, n.TrustID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust")
	}
	if !t.OwnedBy(ownerID) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
	}
	return n, t, nil
}

// letter resolves the records a rendered notice refers to.
func (s *Service) letter(ctx context.Context, n *models.Notice, t *trustmodels.Trust) (dispatch.Letter, error) {
	c, err := s.ledger.Contributions.FindByID(ctx, n.ContributionID)
	if err != nil {
		return dispatch.Letter{}, err
	}
	l := dispatch.Letter{Trust: t, Contribution: c, Notice: n}
	if s.ledger.Beneficiaries != nil {
		if b, err := s.ledger.Beneficiaries.FindByID(ctx, n.BeneficiaryID); err == nil {
			l.BeneficiaryName = b.FullName
		}
	}
	return l, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*models.Notice, error) {
	n, err := s.notices.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNoticeErr(err)
	}
	return n, nil
}

func (s *Service) record(ctx context.Context, actor *uuid.UUID, action audit.Action, noticeID uuid.UUID, details map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    actor,
		Action:     action,
		EntityType: audit.EntityNotice,
		EntityID:   noticeID,
		Details:    details,
		IP:         requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	})
}

func (s *Service) observeTransition(to models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(to))
	}
}

func (s *Service) observeDispatch(start time.Time, failed bool) {
	if s.metrics != nil {
		s.metrics.ObserveDispatch(start, failed)
	}
}

func requireOwner(ctx context.Context) (uuid.UUID, error) {
	ownerID := requestcontext.UserID(ctx)
	if ownerID == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return ownerID, nil
}

func trustIDs(owned map[uuid.UUID]*trustmodels.Trust) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	return ids
}

func wrapNoticeErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "notice not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "notice store failure")
}
