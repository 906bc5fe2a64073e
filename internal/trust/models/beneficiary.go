package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "crummey/pkg/domain-errors"
)

var hundred = decimal.NewFromInt(100)

// Beneficiary belongs to exactly one trust. Only active beneficiaries receive
// notices for new contributions; deactivation never retracts issued notices.
//
// SharePercentage is informational: shares across a trust are not required
// to sum to 100.
type Beneficiary struct {
	ID              uuid.UUID       `json:"id"`
	TrustID         uuid.UUID       `json:"trust_id"`
	FullName        string          `json:"full_name"`
	Email           string          `json:"email"`
	SharePercentage decimal.Decimal `json:"share_percentage"`
	Address         string          `json:"address"`
	IsMinor         bool            `json:"is_minor"`
	GuardianName    string          `json:"guardian_name,omitempty"`
	GuardianEmail   string          `json:"guardian_email,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewBeneficiary builds an active beneficiary and checks its invariants.
func NewBeneficiary(id, trustID uuid.UUID, fullName, email string, share decimal.Decimal,
	isMinor bool, guardianName, guardianEmail string, now time.Time) (*Beneficiary, error) {
	b := &Beneficiary{
		ID:              id,
		TrustID:         trustID,
		FullName:        fullName,
		Email:           email,
		SharePercentage: share,
		IsMinor:         isMinor,
		GuardianName:    guardianName,
		GuardianEmail:   guardianEmail,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := b.checkInvariants(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Beneficiary) checkInvariants() error {
	switch {
	case b.FullName == "" || b.Email == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "beneficiary name and email are required")
	case b.SharePercentage.IsNegative() || b.SharePercentage.GreaterThan(hundred):
		return dErrors.New(dErrors.CodeInvariantViolation, "share percentage must be between 0 and 100")
	case b.IsMinor && (b.GuardianName == "" || b.GuardianEmail == ""):
		return dErrors.New(dErrors.CodeInvariantViolation, "guardian name and email are required for a minor")
	}
	return nil
}

// Recipient returns who a notice for this beneficiary is addressed to:
// the guardian for a minor, the beneficiary otherwise.
func (b *Beneficiary) Recipient() (name, email string) {
	if b.IsMinor {
		return b.GuardianName, b.GuardianEmail
	}
	return b.FullName, b.Email
}

// EligibleAt reports whether the beneficiary should receive a notice for a
// contribution recorded at t.
func (b *Beneficiary) EligibleAt(t time.Time) bool {
	return b.IsActive && !b.CreatedAt.After(t)
}

// CanDeactivate checks if the beneficiary can transition to inactive.
func (b *Beneficiary) CanDeactivate() error {
	if !b.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "beneficiary is already inactive")
	}
	return nil
}

// ApplyDeactivation marks the beneficiary inactive. Call CanDeactivate first.
func (b *Beneficiary) ApplyDeactivation(now time.Time) {
	b.IsActive = false
	b.UpdatedAt = now
}

// ApplyUpdate overwrites the fields set in u and re-checks invariants.
func (b *Beneficiary) ApplyUpdate(u BeneficiaryUpdate, now time.Time) error {
	next := *b
	if u.FullName != nil {
		next.FullName = *u.FullName
	}
	if u.Email != nil {
		next.Email = *u.Email
	}
	if u.SharePercentage != nil {
		next.SharePercentage = *u.SharePercentage
	}
	if u.Address != nil {
		next.Address = *u.Address
	}
	if u.IsMinor != nil {
		next.IsMinor = *u.IsMinor
	}
	if u.GuardianName != nil {
		next.GuardianName = *u.GuardianName
	}
	if u.GuardianEmail != nil {
		next.GuardianEmail = *u.GuardianEmail
	}
	if err := next.checkInvariants(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*b = next
	return nil
}

// BeneficiaryUpdate is a partial update; nil fields are left unchanged.
type BeneficiaryUpdate struct {
	FullName        *string
	Email           *string
	SharePercentage *decimal.Decimal
	Address         *string
	IsMinor         *bool
	GuardianName    *string
	GuardianEmail   *string
}
