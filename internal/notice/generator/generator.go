// Package generator derives the notice set for a contribution.
//
// Generate is pure apart from the token source: the same contribution, trust
// and beneficiary snapshot always yield the same drafts (tokens aside), one per
// eligible beneficiary, in beneficiary order.
package generator

import (
	"fmt"

	"github.com/google/uuid"

	contributionmodels "crummey/internal/contribution/models"
	"crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
)

// TokenFunc returns a fresh unguessable acknowledgment token.
type TokenFunc func() (string, error)

// ErrNoEligibleBeneficiaries is returned when no active beneficiary can receive a notice.
var ErrNoEligibleBeneficiaries = dErrors.Validation(
	"trust has no active beneficiaries to notify",
	map[string]string{"trust_id": "trust has no active beneficiaries"},
)

// ErrIncompleteSnapshot is returned when a beneficiary captured by the
// contribution's snapshot is missing from the set handed to Generate.
var ErrIncompleteSnapshot = dErrors.New(dErrors.CodeInvariantViolation,
	"beneficiary snapshot does not match the stored beneficiaries")

// Generate returns one pending-notice draft per active beneficiary of trust.
//
// When the contribution carries a snapshot, the snapshot decides: every
// captured beneficiary gets a draft whether or not it is still active, and the
// deadline uses the captured withdrawal period. Otherwise the beneficiaries'
// current state and the trust's current period apply.
//
// Withdrawal amount is the full contribution amount. The deadline is the
// contribution date plus the withdrawal period. Minors are addressed through
// their guardian.
func Generate(c *contributionmodels.Contribution, trust *trustmodels.Trust,
	beneficiaries []*trustmodels.Beneficiary, newToken TokenFunc) ([]models.Draft, error) {
	if c.TrustID != trust.ID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contribution does not belong to trust")
	}

	period := trust.WithdrawalPeriodDays
	eligible := func(b *trustmodels.Beneficiary) bool { return b.IsActive }
	if c.HasSnapshot() {
		period = c.WithdrawalPeriodDays
		eligible = func(b *trustmodels.Beneficiary) bool { return c.InSnapshot(b.ID) }
	}

	deadline := c.WithdrawalDeadline(period)
	noticeDate := domain.DateOf(c.CreatedAt)
	seen := make(map[uuid.UUID]struct{}, len(beneficiaries))
	drafts := make([]models.Draft, 0, len(beneficiaries))

	for _, b := range beneficiaries {
		if b.TrustID != trust.ID || !eligible(b) {
			continue
		}
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}

		token, err := newToken()
		if err != nil {
			return nil, fmt.Errorf("generate acknowledgment token: %w", err)
		}
		name, email := b.Recipient()
		drafts = append(drafts, models.Draft{
			ContributionID:      c.ID,
			BeneficiaryID:       b.ID,
			TrustID:             trust.ID,
			RecipientName:       name,
			RecipientEmail:      email,
			WithdrawalAmount:    c.Amount,
			WithdrawalDeadline:  deadline,
			NoticeDate:          noticeDate,
			AcknowledgmentToken: token,
		})
	}

	if c.HasSnapshot() && len(drafts) != len(c.BeneficiaryIDs) {
		return nil, ErrIncompleteSnapshot
	}
	if len(drafts) == 0 {
		return nil, ErrNoEligibleBeneficiaries
	}
	return drafts, nil
}
