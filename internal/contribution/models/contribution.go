package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
)

// Contribution is a gift to a trust. Each one fans out into one notice per
// beneficiary active when it was recorded.
//
// BeneficiaryIDs and WithdrawalPeriodDays freeze the recipients and the
// deadline rule at recording time, so a re-driven generation yields the same
// notice set even if the trust or its beneficiaries change in between.
//
// Invariants:
//   - Amount > 0
//   - NoticesGenerated flips false -> true exactly once
//   - the snapshot is set once, before any notice exists
type Contribution struct {
	ID                   uuid.UUID       `json:"id"`
	TrustID              uuid.UUID       `json:"trust_id"`
	Amount               decimal.Decimal `json:"amount"`
	ContributionDate     domain.Date     `json:"contribution_date"`
	Description          string          `json:"description"`
	NoticesGenerated     bool            `json:"notices_generated"`
	NoticesGeneratedAt   *time.Time      `json:"notices_generated_at"`
	BeneficiaryIDs       []uuid.UUID     `json:"beneficiary_ids"`
	WithdrawalPeriodDays int             `json:"withdrawal_period_days"`
	CreatedBy            uuid.UUID       `json:"created_by"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewContribution builds a contribution whose notices are not yet generated.
func NewContribution(id, trustID uuid.UUID, amount decimal.Decimal, date domain.Date,
	description string, createdBy uuid.UUID, now time.Time) (*Contribution, error) {
	c := &Contribution{
		ID:               id,
		TrustID:          trustID,
		Amount:           amount,
		ContributionDate: date,
		Description:      description,
		CreatedBy:        createdBy,
		CreatedAt:        now,
	}
	if err := c.checkInvariants(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contribution) checkInvariants() error {
	switch {
	case c.TrustID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "contribution requires a trust")
	case !c.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvariantViolation, "amount must be greater than 0")
	case c.ContributionDate.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "contribution date is required")
	}
	return nil
}

// WithdrawalDeadline is the contribution date plus the trust's withdrawal
// period in calendar days.
func (c *Contribution) WithdrawalDeadline(periodDays int) domain.Date {
	return c.ContributionDate.AddDays(periodDays)
}

// TakeSnapshot records who must be noticed and under which withdrawal period.
func (c *Contribution) TakeSnapshot(periodDays int, beneficiaryIDs []uuid.UUID) error {
	if c.HasSnapshot() {
		return dErrors.New(dErrors.CodeInvariantViolation, "beneficiary snapshot already taken")
	}
	if periodDays <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal period must be greater than 0")
	}
	if len(beneficiaryIDs) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "beneficiary snapshot is empty")
	}
	c.WithdrawalPeriodDays = periodDays
	c.BeneficiaryIDs = slices.Clone(beneficiaryIDs)
	return nil
}

func (c *Contribution) HasSnapshot() bool {
	return len(c.BeneficiaryIDs) > 0
}

// InSnapshot reports whether the beneficiary was captured when the
// contribution was recorded.
func (c *Contribution) InSnapshot(beneficiaryID uuid.UUID) bool {
	return slices.Contains(c.BeneficiaryIDs, beneficiaryID)
}

// Clone returns a copy that shares no slices with c.
func (c *Contribution) Clone() *Contribution {
	cp := *c
	cp.BeneficiaryIDs = slices.Clone(c.BeneficiaryIDs)
	return &cp
}
