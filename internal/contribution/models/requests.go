package models

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/platform/validation"
)

// maxAmount matches NUMERIC(14, 2).
var maxAmount = decimal.RequireFromString("999999999999.99")

// CreateContributionRequest is the body of POST /contributions.
type CreateContributionRequest struct {
	TrustID          string          `json:"trust_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ContributionDate string          `json:"contribution_date" validate:"required"`
	Description      string          `json:"description" validate:"max=1000"`

	trustID uuid.UUID
	date    domain.Date
}

func (r *CreateContributionRequest) Normalize() {
	r.TrustID = strings.TrimSpace(r.TrustID)
	r.ContributionDate = strings.TrimSpace(r.ContributionDate)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateContributionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	trustID, err := domain.ParseID("trust_id", r.TrustID)
	if err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return dErrors.Field("amount", "amount must be greater than 0")
	}
	if r.Amount.GreaterThan(maxAmount) || !r.Amount.Equal(r.Amount.Round(2)) {
		return dErrors.Field("amount", "amount must have at most 12 digits and 2 decimal places")
	}
	date, err := domain.ParseDate(r.ContributionDate)
	if err != nil {
		return dErrors.Field("contribution_date", "contribution_date must be a date in YYYY-MM-DD format")
	}
	r.trustID = trustID
	r.date = date
	return nil
}

// ParsedTrustID returns the trust id parsed by Validate.
func (r *CreateContributionRequest) ParsedTrustID() uuid.UUID { return r.trustID }

// ParsedDate returns the contribution date parsed by Validate.
func (r *CreateContributionRequest) ParsedDate() domain.Date { return r.date }
