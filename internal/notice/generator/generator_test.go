package generator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contributionmodels "crummey/internal/contribution/models"
	trustmodels "crummey/internal/trust/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/platform/secrets"
)

var now = time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC)

func fixture(t *testing.T, period int, date domain.Date) (*trustmodels.Trust, *contributionmodels.Contribution) {
	t.Helper()
	tr, err := trustmodels.NewTrust(uuid.New(), uuid.New(), "Family Trust", trustmodels.TrustTypeILIT,
		domain.NewDate(2020, time.March, 1), period, "Pat", "pat@example.com", now)
	require.NoError(t, err)
	c, err := contributionmodels.NewContribution(uuid.New(), tr.ID, decimal.RequireFromString("15000.00"),
		date, "annual gift", tr.OwnerID, now)
	require.NoError(t, err)
	return tr, c
}

func beneficiary(t *testing.T, trustID uuid.UUID, name string, minor bool) *trustmodels.Beneficiary {
	t.Helper()
	guardian, guardianEmail := "", ""
	if minor {
		guardian, guardianEmail = "Guardian of "+name, "guardian@example.com"
	}
	b, err := trustmodels.NewBeneficiary(uuid.New(), trustID, name, name+"@example.com",
		decimal.NewFromInt(50), minor, guardian, guardianEmail, now)
	require.NoError(t, err)
	return b
}

func counterTokens() TokenFunc {
	i := 0
	return func() (string, error) {
		i++
		return fmt.Sprintf("token-%d", i), nil
	}
}

func TestGenerateFanOut(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	bs := []*trustmodels.Beneficiary{
		beneficiary(t, tr.ID, "alex", false),
		beneficiary(t, tr.ID, "sam", false),
		beneficiary(t, tr.ID, "kid", true),
	}

	drafts, err := Generate(c, tr, bs, counterTokens())
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	tokens := map[string]bool{}
	for i, d := range drafts {
		assert.Equal(t, c.ID, d.ContributionID)
		assert.Equal(t, tr.ID, d.TrustID)
		assert.Equal(t, bs[i].ID, d.BeneficiaryID)
		assert.True(t, c.Amount.Equal(d.WithdrawalAmount), "full amount, not pro-rated")
		assert.Equal(t, "2024-02-14", d.WithdrawalDeadline.String())
		assert.Equal(t, "2024-01-15", d.NoticeDate.String())
		tokens[d.AcknowledgmentToken] = true
	}
	assert.Len(t, tokens, 3)

	assert.Equal(t, "Guardian of kid", drafts[2].RecipientName)
	assert.Equal(t, "guardian@example.com", drafts[2].RecipientEmail)
	assert.Equal(t, "alex@example.com", drafts[0].RecipientEmail)
}

func TestGenerateDeadlines(t *testing.T) {
	cases := []struct {
		date     domain.Date
		period   int
		expected string
	}{
		{domain.NewDate(2024, time.January, 15), 30, "2024-02-14"},
		{domain.NewDate(2024, time.December, 20), 45, "2025-02-03"},
		{domain.NewDate(2024, time.November, 15), 60, "2025-01-14"},
		{domain.NewDate(2024, time.February, 28), 30, "2024-03-29"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s+%d", tc.date, tc.period), func(t *testing.T) {
			tr, c := fixture(t, tc.period, tc.date)
			drafts, err := Generate(c, tr, []*trustmodels.Beneficiary{beneficiary(t, tr.ID, "a", false)}, counterTokens())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, drafts[0].WithdrawalDeadline.String())
		})
	}
}

func TestGenerateSkipsIneligible(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	active := beneficiary(t, tr.ID, "active", false)
	inactive := beneficiary(t, tr.ID, "inactive", false)
	inactive.ApplyDeactivation(now)
	foreign := beneficiary(t, uuid.New(), "foreign", false)

	drafts, err := Generate(c, tr, []*trustmodels.Beneficiary{active, inactive, foreign, active}, counterTokens())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, active.ID, drafts[0].BeneficiaryID)
}

func TestGenerateFromSnapshot(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	captured := beneficiary(t, tr.ID, "captured", false)
	later := beneficiary(t, tr.ID, "later", false)
	require.NoError(t, c.TakeSnapshot(tr.WithdrawalPeriodDays, []uuid.UUID{captured.ID}))

	captured.ApplyDeactivation(now)
	tr.WithdrawalPeriodDays = 60

	drafts, err := Generate(c, tr, []*trustmodels.Beneficiary{captured, later}, counterTokens())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, captured.ID, drafts[0].BeneficiaryID, "deactivation after recording does not drop the notice")
	assert.Equal(t, "2024-02-14", drafts[0].WithdrawalDeadline.String(), "captured period wins over the edited one")
}

func TestGenerateRejectsIncompleteSnapshot(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	present := beneficiary(t, tr.ID, "present", false)
	require.NoError(t, c.TakeSnapshot(30, []uuid.UUID{present.ID, uuid.New()}))

	_, err := Generate(c, tr, []*trustmodels.Beneficiary{present}, counterTokens())
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)
}

func TestGenerateRejectsEmptySet(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))

	_, err := Generate(c, tr, nil, counterTokens())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEligibleBeneficiaries))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGeneratePropagatesTokenFailure(t *testing.T) {
	tr, c := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	boom := errors.New("entropy exhausted")

	_, err := Generate(c, tr, []*trustmodels.Beneficiary{beneficiary(t, tr.ID, "a", false)},
		func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestGenerateRejectsForeignContribution(t *testing.T) {
	tr, _ := fixture(t, 30, domain.NewDate(2024, time.January, 15))
	_, other := fixture(t, 30, domain.NewDate(2024, time.January, 15))

	_, err := Generate(other, tr, []*trustmodels.Beneficiary{beneficiary(t, tr.ID, "a", false)}, counterTokens())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestAcknowledgmentTokensAreUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("generates 100k tokens")
	}
	const n = 100_000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		tok, err := secrets.Generate()
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup, "collision after %d tokens", i)
		seen[tok] = struct{}{}
	}
}
