package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crummey/internal/contribution/models"
	"crummey/internal/notice/generator"
	noticemetrics "crummey/internal/notice/metrics"
	noticemodels "crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	dErrors "crummey/pkg/domain-errors"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/secrets"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Contribution) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	ListByTrust(ctx context.Context, trustID uuid.UUID) ([]*models.Contribution, error)
	ListByTrusts(ctx context.Context, trustIDs []uuid.UUID) ([]*models.Contribution, error)
	MarkNoticesGenerated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type TrustReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*trustmodels.Trust, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*trustmodels.Trust, error)
}

type BeneficiaryReader interface {
	ListEligible(ctx context.Context, trustID uuid.UUID, asOf time.Time) ([]*trustmodels.Beneficiary, error)
	ListByIDs(ctx context.Context, trustID uuid.UUID, ids []uuid.UUID) ([]*trustmodels.Beneficiary, error)
}

// NoticeWriter persists generated notices. InsertIfAbsent reports false when
// the (contribution, beneficiary) pair already has a notice.
type NoticeWriter interface {
	InsertIfAbsent(ctx context.Context, n *noticemodels.Notice) (bool, error)
	ListByContribution(ctx context.Context, contributionID uuid.UUID) ([]*noticemodels.Notice, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Detail is a contribution with the notices generated from it.
type Detail struct {
	Contribution *models.Contribution   `json:"contribution"`
	Notices      []*noticemodels.Notice `json:"notices"`
}

// Service records contributions and drives notice generation for them.
//
// Generation is safe to repeat: the recipients and withdrawal period are
// frozen on the contribution before any notice is written, notices are
// inserted per beneficiary only if absent, and the notices_generated flag is
// flipped by a conditional update after the set is complete.
type Service struct {
	contributions Store
	trusts        TrustReader
	beneficiaries BeneficiaryReader
	notices       NoticeWriter
	logger        *slog.Logger
	auditor       AuditRecorder
	metrics       *noticemetrics.Metrics
	newToken      generator.TokenFunc
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

func WithMetrics(m *noticemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTokenSource replaces the acknowledgment token generator.
func WithTokenSource(fn generator.TokenFunc) Option {
	return func(s *Service) {
		s.newToken = fn
	}
}

func New(contributions Store, trusts TrustReader, beneficiaries BeneficiaryReader, notices NoticeWriter, opts ...Option) *Service {
	s := &Service{
		contributions: contributions,
		trusts:        trusts,
		beneficiaries: beneficiaries,
		notices:       notices,
		logger:        slog.Default(),
		newToken:      secrets.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a contribution and generates its notices in the same call.
// A trust with no active beneficiaries is rejected before anything is stored.
func (s *Service) Create(ctx context.Context, req *models.CreateContributionRequest) (*Detail, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trust, err := s.ownedTrust(ctx, req.ParsedTrustID(), ownerID)
	if err != nil {
		return nil, err
	}
	if !trust.IsActive {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "trust is inactive")
	}

	now := requestcontext.Now(ctx)
	eligible, err := s.beneficiaries.ListEligible(ctx, trust.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load beneficiaries")
	}
	if len(eligible) == 0 {
		return nil, generator.ErrNoEligibleBeneficiaries
	}

	c, err := models.NewContribution(uuid.New(), trust.ID, req.Amount, req.ParsedDate(),
		req.Description, ownerID, now)
	if err != nil {
		return nil, invariantToValidation(err)
	}
	if err := c.TakeSnapshot(trust.WithdrawalPeriodDays, beneficiaryIDs(eligible)); err != nil {
		return nil, err
	}
	if err := s.contributions.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save contribution")
	}
	s.record(ctx, audit.ActionContributionCreated, c.ID, map[string]any{
		"trust_id":          trust.ID.String(),
		"amount":            c.Amount.String(),
		"contribution_date": c.ContributionDate.String(),
	})

	notices, err := s.generate(ctx, c, trust, eligible)
	if err != nil {
		s.logger.ErrorContext(ctx, "notice generation failed after contribution was saved",
			"request_id", requestcontext.RequestID(ctx),
			"contribution_id", c.ID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "contribution saved but notice generation failed")
	}
	return s.detail(ctx, c.ID, notices)
}

// GenerateNotices re-drives generation for a contribution whose earlier
// attempt did not complete. It regenerates from the snapshot stored with the
// contribution, so later trust or beneficiary edits cannot shrink the set.
func (s *Service) GenerateNotices(ctx context.Context, id uuid.UUID) (*Detail, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	c, trust, err := s.ownedContribution(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if c.NoticesGenerated {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "notices already generated for this contribution")
	}

	if !c.HasSnapshot() {
		return nil, dErrors.New(dErrors.CodeInternal, "contribution has no beneficiary snapshot")
	}
	captured, err := s.beneficiaries.ListByIDs(ctx, trust.ID, c.BeneficiaryIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load beneficiaries")
	}
	notices, err := s.generate(ctx, c, trust, captured)
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "notice generation failed")
	}
	return s.detail(ctx, c.ID, notices)
}

// List returns the caller's contributions, optionally narrowed to one trust.
func (s *Service) List(ctx context.Context, trustID *uuid.UUID) ([]*models.Contribution, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if trustID != nil {
		if _, err := s.ownedTrust(ctx, *trustID, ownerID); err != nil {
			return nil, err
		}
		list, err := s.contributions.ListByTrust(ctx, *trustID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contributions")
		}
		return list, nil
	}

	trusts, err := s.trusts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trusts")
	}
	if len(trusts) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(trusts))
	for i, t := range trusts {
		ids[i] = t.ID
	}
	list, err := s.contributions.ListByTrusts(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contributions")
	}
	return list, nil
}

// Get returns a contribution with its notices.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	c, _, err := s.ownedContribution(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	notices, err := s.notices.ListByContribution(ctx, c.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notices")
	}
	return &Detail{Contribution: c, Notices: nonNil(notices)}, nil
}

// generate inserts one notice per draft unless present, then flips the flag.
// Only the caller that flips the flag audits the generation.
func (s *Service) generate(ctx context.Context, c *models.Contribution, trust *trustmodels.Trust,
	eligible []*trustmodels.Beneficiary) ([]*noticemodels.Notice, error) {
	drafts, err := generator.Generate(c, trust, eligible, s.newToken)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	inserted := 0
	for _, d := range drafts {
		n, err := noticemodels.NewNotice(uuid.New(), d, now)
		if err != nil {
			return nil, err
		}
		ok, err := s.notices.InsertIfAbsent(ctx, n)
		if err != nil {
			return nil, err
		}
		if ok {
			inserted++
		}
	}
	if s.metrics != nil && inserted > 0 {
		s.metrics.AddGenerated(inserted)
	}

	flipped, err := s.contributions.MarkNoticesGenerated(ctx, c.ID, now)
	if err != nil {
		return nil, err
	}
	if flipped {
		s.record(ctx, audit.ActionNoticesGenerated, c.ID, map[string]any{
			"trust_id":     trust.ID.String(),
			"notice_count": len(drafts),
		})
		s.logger.InfoContext(ctx, "notices generated",
			"request_id", requestcontext.RequestID(ctx),
			"contribution_id", c.ID,
			"count", len(drafts),
			"inserted", inserted,
		)
	}
	return s.notices.ListByContribution(ctx, c.ID)
}

func (s *Service) detail(ctx context.Context, id uuid.UUID, notices []*noticemodels.Notice) (*Detail, error) {
	c, err := s.contributions.FindByID(ctx, id)
	if err != nil {
		return nil, wrapContributionErr(err)
	}
	return &Detail{Contribution: c, Notices: nonNil(notices)}, nil
}

func (s *Service) ownedTrust(ctx context.Context, trustID, ownerID uuid.UUID) (*trustmodels.Trust, error) {
	t, err := s.trusts.FindByID(ctx, trustID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "trust not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust")
	}
	if !t.OwnedBy(ownerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "trust not found")
	}
	return t, nil
}

// ownedContribution reports another owner's contribution as not found.
func (s *Service) ownedContribution(ctx context.Context, id, ownerID uuid.UUID) (*models.Contribution, *trustmodels.Trust, error) {
	c, err := s.contributions.FindByID(ctx, id)
	if err != nil {
		return nil, nil, wrapContributionErr(err)
	}
	t, err := s.ownedTrust(ctx, c.TrustID, ownerID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "contribution not found")
		}
		return nil, nil, err
	}
	return c, t, nil
}

func (s *Service) record(ctx context.Context, action audit.Action, contributionID uuid.UUID, details map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(requestcontext.UserID(ctx)),
		Action:     action,
		EntityType: audit.EntityContribution,
		EntityID:   contributionID,
		Details:    details,
		IP:         requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	})
}

func requireOwner(ctx context.Context) (uuid.UUID, error) {
	ownerID := requestcontext.UserID(ctx)
	if ownerID == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return ownerID, nil
}

func invariantToValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}

func wrapContributionErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "contribution not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "contribution store failure")
}

func beneficiaryIDs(bs []*trustmodels.Beneficiary) []uuid.UUID {
	ids := make([]uuid.UUID, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}

func nonNil(notices []*noticemodels.Notice) []*noticemodels.Notice {
	if notices == nil {
		return []*noticemodels.Notice{}
	}
	return notices
}
