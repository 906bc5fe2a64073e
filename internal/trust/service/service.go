package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"crummey/internal/trust/models"
	dErrors "crummey/pkg/domain-errors"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

type TrustStore interface {
	Create(ctx context.Context, t *models.Trust) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trust, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Trust, error)
	Execute(ctx context.Context, id uuid.UUID, validate func(*models.Trust) error, mutate func(*models.Trust)) (*models.Trust, error)
}

type BeneficiaryStore interface {
	Create(ctx context.Context, b *models.Beneficiary) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error)
	ListByTrust(ctx context.Context, trustID uuid.UUID) ([]*models.Beneficiary, error)
	Execute(ctx context.Context, id uuid.UUID, validate func(*models.Beneficiary) error, mutate func(*models.Beneficiary)) (*models.Beneficiary, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service manages trusts and their beneficiaries for the authenticated owner.
//
// Every lookup is owner-scoped: a trust owned by someone else is reported as
// not found so its existence is never revealed.
type Service struct {
	trusts        TrustStore
	beneficiaries BeneficiaryStore
	logger        *slog.Logger
	auditor       AuditRecorder
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

func New(trusts TrustStore, beneficiaries BeneficiaryStore, opts ...Option) *Service {
	s := &Service{trusts: trusts, beneficiaries: beneficiaries, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateTrust(ctx context.Context, req *models.CreateTrustRequest) (*models.Trust, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := models.NewTrust(uuid.New(), ownerID, req.Name, models.TrustType(req.TrustType),
		req.ParsedTrustDate(), *req.WithdrawalPeriodDays, req.TrusteeName, req.TrusteeEmail,
		requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantToValidation(err)
	}
	t.TrusteePhone = req.TrusteePhone
	t.TrusteeAddress = req.TrusteeAddress

	if err := s.trusts.Create(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create trust")
	}
	s.record(ctx, audit.ActionTrustCreated, audit.EntityTrust, t.ID, map[string]any{
		"name":                   t.Name,
		"withdrawal_period_days": t.WithdrawalPeriodDays,
	})
	return t, nil
}

func (s *Service) ListTrusts(ctx context.Context) ([]*models.Trust, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	trusts, err := s.trusts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trusts")
	}
	return trusts, nil
}

// GetTrust returns a trust owned by the caller.
func (s *Service) GetTrust(ctx context.Context, trustID uuid.UUID) (*models.Trust, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return s.ownedTrust(ctx, trustID, ownerID)
}

func (s *Service) UpdateTrust(ctx context.Context, trustID uuid.UUID, req *models.UpdateTrustRequest) (*models.Trust, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var applyErr error
	t, err := s.trusts.Execute(ctx, trustID,
		func(t *models.Trust) error {
			if !t.OwnedBy(ownerID) {
				return sentinel.ErrNotFound
			}
			candidate := *t
			applyErr = candidate.ApplyUpdate(req.Update(), now)
			return applyErr
		},
		func(t *models.Trust) {
			_ = t.ApplyUpdate(req.Update(), now)
		},
	)
	if err != nil {
		if applyErr != nil {
			return nil, invariantToValidation(applyErr)
		}
		return nil, wrapTrustErr(err)
	}
	s.record(ctx, audit.ActionTrustUpdated, audit.EntityTrust, t.ID, nil)
	return t, nil
}

// DeactivateTrust marks a trust inactive. Existing notices are untouched.
//
// Uses the Execute callback pattern for atomic validate-then-mutate.
func (s *Service) DeactivateTrust(ctx context.Context, trustID uuid.UUID) (*models.Trust, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	t, err := s.trusts.Execute(ctx, trustID,
		func(t *models.Trust) error {
			if !t.OwnedBy(ownerID) {
				return sentinel.ErrNotFound
			}
			if err := t.CanDeactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "trust is already inactive")
			}
			return nil
		},
		func(t *models.Trust) {
			t.ApplyDeactivation(now)
		},
	)
	if err != nil {
		return nil, wrapTrustErr(err)
	}
	s.record(ctx, audit.ActionTrustDeactivated, audit.EntityTrust, t.ID, nil)
	return t, nil
}

func (s *Service) AddBeneficiary(ctx context.Context, trustID uuid.UUID, req *models.CreateBeneficiaryRequest) (*models.Beneficiary, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.ownedTrust(ctx, trustID, ownerID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "trust is inactive")
	}

	b, err := models.NewBeneficiary(uuid.New(), t.ID, req.FullName, req.Email, *req.SharePercentage,
		req.IsMinor, req.GuardianName, req.GuardianEmail, requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantToValidation(err)
	}
	b.Address = req.Address

	if err := s.beneficiaries.Create(ctx, b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create beneficiary")
	}
	s.record(ctx, audit.ActionBeneficiaryCreated, audit.EntityBeneficiary, b.ID, map[string]any{
		"trust_id": t.ID.String(),
		"is_minor": b.IsMinor,
	})
	return b, nil
}

func (s *Service) ListBeneficiaries(ctx context.Context, trustID uuid.UUID) ([]*models.Beneficiary, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedTrust(ctx, trustID, ownerID); err != nil {
		return nil, err
	}
	list, err := s.beneficiaries.ListByTrust(ctx, trustID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list beneficiaries")
	}
	return list, nil
}

func (s *Service) UpdateBeneficiary(ctx context.Context, trustID, beneficiaryID uuid.UUID, req *models.UpdateBeneficiaryRequest) (*models.Beneficiary, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ownedTrust(ctx, trustID, ownerID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var applyErr error
	b, err := s.beneficiaries.Execute(ctx, beneficiaryID,
		func(b *models.Beneficiary) error {
			if b.TrustID != trustID {
				return sentinel.ErrNotFound
			}
			candidate := *b
			applyErr = candidate.ApplyUpdate(req.Update(), now)
			return applyErr
		},
		func(b *models.Beneficiary) {
			_ = b.ApplyUpdate(req.Update(), now)
		},
	)
	if err != nil {
		if applyErr != nil {
			return nil, invariantToValidation(applyErr)
		}
		return nil, wrapBeneficiaryErr(err)
	}
	s.record(ctx, audit.ActionBeneficiaryUpdated, audit.EntityBeneficiary, b.ID, map[string]any{
		"trust_id": trustID.String(),
	})
	return b, nil
}

// DeactivateBeneficiary excludes the beneficiary from future contributions.
// Notices already issued to them stay in force.
func (s *Service) DeactivateBeneficiary(ctx context.Context, trustID, beneficiaryID uuid.UUID) (*models.Beneficiary, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedTrust(ctx, trustID, ownerID); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	b, err := s.beneficiaries.Execute(ctx, beneficiaryID,
		func(b *models.Beneficiary) error {
			if b.TrustID != trustID {
				return sentinel.ErrNotFound
			}
			if err := b.CanDeactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "beneficiary is already inactive")
			}
			return nil
		},
		func(b *models.Beneficiary) {
			b.ApplyDeactivation(now)
		},
	)
	if err != nil {
		return nil, wrapBeneficiaryErr(err)
	}
	s.record(ctx, audit.ActionBeneficiaryDeactivated, audit.EntityBeneficiary, b.ID, map[string]any{
		"trust_id": trustID.String(),
	})
	return b, nil
}

func (s *Service) ownedTrust(ctx context.Context, trustID, ownerID uuid.UUID) (*models.Trust, error) {
	t, err := s.trusts.FindByID(ctx, trustID)
	if err != nil {
		return nil, wrapTrustErr(err)
	}
	if !t.OwnedBy(ownerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "trust not found")
	}
	return t, nil
}

func (s *Service) record(ctx context.Context, action audit.Action, entityType audit.EntityType, entityID uuid.UUID, details map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(requestcontext.UserID(ctx)),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
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

func wrapTrustErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "trust not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "trust store failure")
}

func wrapBeneficiaryErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "beneficiary store failure")
}

