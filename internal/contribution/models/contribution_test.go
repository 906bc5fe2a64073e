package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
)

func TestWithdrawalDeadline(t *testing.T) {
	cases := []struct {
		date     domain.Date
		period   int
		expected domain.Date
	}{
		{domain.NewDate(2024, time.January, 15), 30, domain.NewDate(2024, time.February, 14)},
		{domain.NewDate(2024, time.December, 20), 45, domain.NewDate(2025, time.February, 3)},
		{domain.NewDate(2024, time.January, 31), 60, domain.NewDate(2024, time.March, 31)},
		{domain.NewDate(2023, time.February, 1), 30, domain.NewDate(2023, time.March, 3)},
	}
	for _, tc := range cases {
		c, err := NewContribution(uuid.New(), uuid.New(), decimal.NewFromInt(100), tc.date, "", uuid.New(), time.Now())
		require.NoError(t, err)
		got := c.WithdrawalDeadline(tc.period)
		assert.True(t, tc.expected.Equal(got), "%s + %d: got %s want %s", tc.date, tc.period, got, tc.expected)
	}
}

func TestNewContributionRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewContribution(uuid.New(), uuid.New(), decimal.Zero, domain.NewDate(2024, 1, 1), "", uuid.New(), time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestCreateContributionRequest(t *testing.T) {
	decode := func(t *testing.T, body string) *CreateContributionRequest {
		t.Helper()
		var r CreateContributionRequest
		require.NoError(t, json.Unmarshal([]byte(body), &r))
		r.Normalize()
		return &r
	}
	trustID := uuid.NewString()

	t.Run("accepts string and number amounts", func(t *testing.T) {
		for _, amount := range []string{`"15000.50"`, `15000.5`} {
			r := decode(t, `{"trust_id":"`+trustID+`","amount":`+amount+`,"contribution_date":"2024-01-15"}`)
			require.NoError(t, r.Validate())
			assert.Equal(t, "15000.5", r.Amount.String())
			assert.Equal(t, "2024-01-15", r.ParsedDate().String())
		}
	})

	t.Run("rejects zero and negative amounts", func(t *testing.T) {
		for _, amount := range []string{`0`, `"-5"`} {
			r := decode(t, `{"trust_id":"`+trustID+`","amount":`+amount+`,"contribution_date":"2024-01-15"}`)
			err := r.Validate()
			assert.Contains(t, dErrors.FieldsOf(err), "amount")
		}
	})

	t.Run("rejects fractional cents", func(t *testing.T) {
		r := decode(t, `{"trust_id":"`+trustID+`","amount":"10.001","contribution_date":"2024-01-15"}`)
		assert.Contains(t, dErrors.FieldsOf(r.Validate()), "amount")
	})

	t.Run("rejects bad dates and ids", func(t *testing.T) {
		r := decode(t, `{"trust_id":"`+trustID+`","amount":1,"contribution_date":"15/01/2024"}`)
		assert.Contains(t, dErrors.FieldsOf(r.Validate()), "contribution_date")

		r = decode(t, `{"trust_id":"x","amount":1,"contribution_date":"2024-01-15"}`)
		assert.Contains(t, dErrors.FieldsOf(r.Validate()), "trust_id")
	})
}

func TestTakeSnapshot(t *testing.T) {
	c, err := NewContribution(uuid.New(), uuid.New(), decimal.NewFromInt(100), domain.NewDate(2024, 1, 15), "", uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, c.HasSnapshot())

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	require.Error(t, c.TakeSnapshot(0, ids))
	require.Error(t, c.TakeSnapshot(30, nil))

	require.NoError(t, c.TakeSnapshot(30, ids))
	ids[0] = uuid.Nil
	assert.True(t, c.InSnapshot(c.BeneficiaryIDs[0]))
	assert.False(t, c.InSnapshot(uuid.Nil), "snapshot is copied")
	assert.Equal(t, 30, c.WithdrawalPeriodDays)

	err = c.TakeSnapshot(45, []uuid.UUID{uuid.New()})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	assert.Equal(t, 30, c.WithdrawalPeriodDays)

	cp := c.Clone()
	cp.BeneficiaryIDs[0] = uuid.Nil
	assert.NotEqual(t, uuid.Nil, c.BeneficiaryIDs[0])
}
