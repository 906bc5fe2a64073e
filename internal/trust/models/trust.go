package models

import (
	"time"

	"github.com/google/uuid"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
)

// TrustType is the legal form of a trust.
type TrustType string

const (
	TrustTypeILIT      TrustType = "ILIT"
	TrustTypeGiftTrust TrustType = "Gift Trust"
	TrustTypeOther     TrustType = "Other"
)

func (t TrustType) IsValid() bool {
	switch t {
	case TrustTypeILIT, TrustTypeGiftTrust, TrustTypeOther:
		return true
	}
	return false
}

// DefaultWithdrawalPeriodDays applies when a trust is created without one.
const DefaultWithdrawalPeriodDays = 30

// Trust is owned by exactly one user. Contributions and notices reference it.
//
// Invariants:
//   - Name and trustee name/email are non-empty
//   - WithdrawalPeriodDays > 0
//   - Changing WithdrawalPeriodDays never touches notices already generated;
//     their deadlines were fixed at generation time
type Trust struct {
	ID                   uuid.UUID   `json:"id"`
	OwnerID              uuid.UUID   `json:"owner_id"`
	Name                 string      `json:"name"`
	TrustType            TrustType   `json:"trust_type"`
	TrustDate            domain.Date `json:"trust_date"`
	WithdrawalPeriodDays int         `json:"withdrawal_period_days"`
	TrusteeName          string      `json:"trustee_name"`
	TrusteeEmail         string      `json:"trustee_email"`
	TrusteePhone         string      `json:"trustee_phone"`
	TrusteeAddress       string      `json:"trustee_address"`
	IsActive             bool        `json:"is_active"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// NewTrust builds an active trust and checks its invariants.
func NewTrust(id, ownerID uuid.UUID, name string, trustType TrustType, trustDate domain.Date,
	periodDays int, trusteeName, trusteeEmail string, now time.Time) (*Trust, error) {
	t := &Trust{
		ID:                   id,
		OwnerID:              ownerID,
		Name:                 name,
		TrustType:            trustType,
		TrustDate:            trustDate,
		WithdrawalPeriodDays: periodDays,
		TrusteeName:          trusteeName,
		TrusteeEmail:         trusteeEmail,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := t.checkInvariants(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trust) checkInvariants() error {
	switch {
	case t.OwnerID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "trust owner is required")
	case t.Name == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "trust name cannot be empty")
	case t.WithdrawalPeriodDays <= 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal period must be positive")
	case !t.TrustType.IsValid():
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown trust type")
	case t.TrusteeName == "" || t.TrusteeEmail == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "trustee name and email are required")
	case t.TrustDate.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "trust date is required")
	}
	return nil
}

// OwnedBy reports whether userID owns this trust.
func (t *Trust) OwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && t.OwnerID == userID
}

// CanDeactivate checks if the trust can transition to inactive.
func (t *Trust) CanDeactivate() error {
	if !t.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "trust is already inactive")
	}
	return nil
}

// ApplyDeactivation marks the trust inactive. Call CanDeactivate first.
func (t *Trust) ApplyDeactivation(now time.Time) {
	t.IsActive = false
	t.UpdatedAt = now
}

// ApplyUpdate overwrites the fields set in u and re-checks invariants.
func (t *Trust) ApplyUpdate(u TrustUpdate, now time.Time) error {
	next := *t
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.TrustType != nil {
		next.TrustType = *u.TrustType
	}
	if u.TrustDate != nil {
		next.TrustDate = *u.TrustDate
	}
	if u.WithdrawalPeriodDays != nil {
		next.WithdrawalPeriodDays = *u.WithdrawalPeriodDays
	}
	if u.TrusteeName != nil {
		next.TrusteeName = *u.TrusteeName
	}
	if u.TrusteeEmail != nil {
		next.TrusteeEmail = *u.TrusteeEmail
	}
	if u.TrusteePhone != nil {
		next.TrusteePhone = *u.TrusteePhone
	}
	if u.TrusteeAddress != nil {
		next.TrusteeAddress = *u.TrusteeAddress
	}
	if err := next.checkInvariants(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*t = next
	return nil
}

// TrustUpdate is a partial update; nil fields are left unchanged.
type TrustUpdate struct {
	Name                 *string
	TrustType            *TrustType
	TrustDate            *domain.Date
	WithdrawalPeriodDays *int
	TrusteeName          *string
	TrusteeEmail         *string
	TrusteePhone         *string
	TrusteeAddress       *string
}
