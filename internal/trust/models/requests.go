package models

import (
	"strings"

	"github.com/shopspring/decimal"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/platform/validation"
)

// CreateTrustRequest is the body of POST /trusts.
type CreateTrustRequest struct {
	Name                 string `json:"name" validate:"notblank,max=200"`
	TrustType            string `json:"trust_type" validate:"omitempty,oneof=ILIT 'Gift Trust' Other"`
	TrustDate            string `json:"trust_date" validate:"required"`
	WithdrawalPeriodDays *int   `json:"withdrawal_period_days" validate:"omitempty,gt=0,lte=365"`
	TrusteeName          string `json:"trustee_name" validate:"notblank,max=200"`
	TrusteeEmail         string `json:"trustee_email" validate:"required,email,max=254"`
	TrusteePhone         string `json:"trustee_phone" validate:"max=50"`
	TrusteeAddress       string `json:"trustee_address" validate:"max=500"`

	trustDate domain.Date
}

func (r *CreateTrustRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.TrustType = strings.TrimSpace(r.TrustType)
	if r.TrustType == "" {
		r.TrustType = string(TrustTypeILIT)
	}
	r.TrustDate = strings.TrimSpace(r.TrustDate)
	if r.WithdrawalPeriodDays == nil {
		days := DefaultWithdrawalPeriodDays
		r.WithdrawalPeriodDays = &days
	}
	r.TrusteeName = strings.TrimSpace(r.TrusteeName)
	r.TrusteeEmail = strings.ToLower(strings.TrimSpace(r.TrusteeEmail))
	r.TrusteePhone = strings.TrimSpace(r.TrusteePhone)
	r.TrusteeAddress = strings.TrimSpace(r.TrusteeAddress)
}

func (r *CreateTrustRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	d, err := domain.ParseDate(r.TrustDate)
	if err != nil {
		return dErrors.Field("trust_date", "trust_date must be a date in YYYY-MM-DD format")
	}
	r.trustDate = d
	return nil
}

// ParsedTrustDate returns the date parsed by Validate.
func (r *CreateTrustRequest) ParsedTrustDate() domain.Date { return r.trustDate }

// UpdateTrustRequest is the body of PATCH /trusts/{id}. Omitted fields are unchanged.
type UpdateTrustRequest struct {
	Name                 *string `json:"name" validate:"omitempty,notblank,max=200"`
	TrustType            *string `json:"trust_type" validate:"omitempty,oneof=ILIT 'Gift Trust' Other"`
	TrustDate            *string `json:"trust_date"`
	WithdrawalPeriodDays *int    `json:"withdrawal_period_days" validate:"omitempty,gt=0,lte=365"`
	TrusteeName          *string `json:"trustee_name" validate:"omitempty,notblank,max=200"`
	TrusteeEmail         *string `json:"trustee_email" validate:"omitempty,email,max=254"`
	TrusteePhone         *string `json:"trustee_phone" validate:"omitempty,max=50"`
	TrusteeAddress       *string `json:"trustee_address" validate:"omitempty,max=500"`

	update TrustUpdate
}

func (r *UpdateTrustRequest) Normalize() {
	trimPtr(r.Name)
	trimPtr(r.TrustType)
	trimPtr(r.TrustDate)
	trimPtr(r.TrusteeName)
	trimPtr(r.TrusteeEmail)
	if r.TrusteeEmail != nil {
		*r.TrusteeEmail = strings.ToLower(*r.TrusteeEmail)
	}
	trimPtr(r.TrusteePhone)
	trimPtr(r.TrusteeAddress)
}

func (r *UpdateTrustRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	u := TrustUpdate{
		Name:                 r.Name,
		WithdrawalPeriodDays: r.WithdrawalPeriodDays,
		TrusteeName:          r.TrusteeName,
		TrusteeEmail:         r.TrusteeEmail,
		TrusteePhone:         r.TrusteePhone,
		TrusteeAddress:       r.TrusteeAddress,
	}
	if r.TrustType != nil {
		tt := TrustType(*r.TrustType)
		u.TrustType = &tt
	}
	if r.TrustDate != nil {
		d, err := domain.ParseDate(*r.TrustDate)
		if err != nil {
			return dErrors.Field("trust_date", "trust_date must be a date in YYYY-MM-DD format")
		}
		u.TrustDate = &d
	}
	r.update = u
	return nil
}

// Update returns the partial update built by Validate.
func (r *UpdateTrustRequest) Update() TrustUpdate { return r.update }

// CreateBeneficiaryRequest is the body of POST /trusts/{id}/beneficiaries.
type CreateBeneficiaryRequest struct {
	FullName        string           `json:"full_name" validate:"notblank,max=200"`
	Email           string           `json:"email" validate:"required,email,max=254"`
	SharePercentage *decimal.Decimal `json:"share_percentage"`
	Address         string           `json:"address" validate:"max=500"`
	IsMinor         bool             `json:"is_minor"`
	GuardianName    string           `json:"guardian_name" validate:"required_if=IsMinor true,max=200"`
	GuardianEmail   string           `json:"guardian_email" validate:"required_if=IsMinor true,omitempty,email,max=254"`
}

func (r *CreateBeneficiaryRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Address = strings.TrimSpace(r.Address)
	r.GuardianName = strings.TrimSpace(r.GuardianName)
	r.GuardianEmail = strings.ToLower(strings.TrimSpace(r.GuardianEmail))
	if r.SharePercentage == nil {
		share := hundred
		r.SharePercentage = &share
	}
}

func (r *CreateBeneficiaryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	return validateShare(r.SharePercentage)
}

// UpdateBeneficiaryRequest is the body of PATCH /trusts/{id}/beneficiaries/{beneficiaryID}.
type UpdateBeneficiaryRequest struct {
	FullName        *string          `json:"full_name" validate:"omitempty,notblank,max=200"`
	Email           *string          `json:"email" validate:"omitempty,email,max=254"`
	SharePercentage *decimal.Decimal `json:"share_percentage"`
	Address         *string          `json:"address" validate:"omitempty,max=500"`
	IsMinor         *bool            `json:"is_minor"`
	GuardianName    *string          `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail   *string          `json:"guardian_email" validate:"omitempty,email,max=254"`
}

func (r *UpdateBeneficiaryRequest) Normalize() {
	trimPtr(r.FullName)
	trimPtr(r.Email)
	if r.Email != nil {
		*r.Email = strings.ToLower(*r.Email)
	}
	trimPtr(r.Address)
	trimPtr(r.GuardianName)
	trimPtr(r.GuardianEmail)
	if r.GuardianEmail != nil {
		*r.GuardianEmail = strings.ToLower(*r.GuardianEmail)
	}
}

func (r *UpdateBeneficiaryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.SharePercentage != nil {
		return validateShare(r.SharePercentage)
	}
	return nil
}

// Update returns the request as a partial update.
func (r *UpdateBeneficiaryRequest) Update() BeneficiaryUpdate {
	return BeneficiaryUpdate{
		FullName:        r.FullName,
		Email:           r.Email,
		SharePercentage: r.SharePercentage,
		Address:         r.Address,
		IsMinor:         r.IsMinor,
		GuardianName:    r.GuardianName,
		GuardianEmail:   r.GuardianEmail,
	}
}

func validateShare(share *decimal.Decimal) error {
	if share.IsNegative() || share.GreaterThan(hundred) {
		return dErrors.Field("share_percentage", "share_percentage must be between 0 and 100")
	}
	return nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
