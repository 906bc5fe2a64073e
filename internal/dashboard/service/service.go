// Package service computes the owner's dashboard summary.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	noticemodels "crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/requestcontext"
)

// DefaultUpcomingWindowDays is how far ahead a sent notice's deadline counts
// as upcoming.
const DefaultUpcomingWindowDays = 14

type TrustStore interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*trustmodels.Trust, error)
	CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type BeneficiaryCounter interface {
	CountActive(ctx context.Context, trustIDs []uuid.UUID) (int, error)
}

type NoticeStore interface {
	Count(ctx context.Context, filter noticemodels.ListFilter) (int, error)
	ListUpcomingDeadlines(ctx context.Context, trustIDs []uuid.UUID, from, until domain.Date) ([]*noticemodels.Notice, error)
}

// Summary is the owner's overview across every trust they hold.
type Summary struct {
	ActiveTrusts        int                    `json:"active_trusts"`
	ActiveBeneficiaries int                    `json:"active_beneficiaries"`
	PendingNotices      int                    `json:"pending_notices"`
	UpcomingDeadlines   []*noticemodels.Notice `json:"upcoming_deadlines"`
	WindowDays          int                    `json:"window_days"`
}

type Service struct {
	trusts        TrustStore
	beneficiaries BeneficiaryCounter
	notices       NoticeStore
	logger        *slog.Logger
	windowDays    int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithUpcomingWindow sets the look-ahead for upcoming deadlines.
func WithUpcomingWindow(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

func New(trusts TrustStore, beneficiaries BeneficiaryCounter, notices NoticeStore, opts ...Option) *Service {
	s := &Service{
		trusts:        trusts,
		beneficiaries: beneficiaries,
		notices:       notices,
		logger:        slog.Default(),
		windowDays:    DefaultUpcomingWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary counts the caller's active trusts and beneficiaries and pending
// notices, and lists sent notices whose deadline falls within the window.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	ownerID := requestcontext.UserID(ctx)
	if ownerID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	trusts, err := s.trusts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trusts")
	}
	out := &Summary{UpcomingDeadlines: []*noticemodels.Notice{}, WindowDays: s.windowDays}
	if len(trusts) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(trusts))
	for i, t := range trusts {
		ids[i] = t.ID
	}

	today := domain.DateOf(requestcontext.Now(ctx))
	pending := noticemodels.StatusPending

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.trusts.CountActiveByOwner(gctx, ownerID)
		out.ActiveTrusts = n
		return err
	})
	g.Go(func() error {
		n, err := s.beneficiaries.CountActive(gctx, ids)
		out.ActiveBeneficiaries = n
		return err
	})
	g.Go(func() error {
		n, err := s.notices.Count(gctx, noticemodels.ListFilter{TrustIDs: ids, Status: &pending})
		out.PendingNotices = n
		return err
	})
	g.Go(func() error {
		upcoming, err := s.notices.ListUpcomingDeadlines(gctx, ids, today, today.AddDays(s.windowDays))
		if upcoming != nil {
			out.UpcomingDeadlines = upcoming
		}
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "dashboard summary failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build dashboard summary")
	}
	return out, nil
}
