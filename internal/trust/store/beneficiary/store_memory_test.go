package beneficiary

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crummey/internal/trust/models"
)

func newBeneficiary(t *testing.T, trustID uuid.UUID, name string, createdAt time.Time) *models.Beneficiary {
	t.Helper()
	b, err := models.NewBeneficiary(uuid.New(), trustID, name, name+"@example.com",
		decimal.NewFromInt(100), false, "", "", createdAt)
	require.NoError(t, err)
	return b
}

func TestInMemoryListByIDsAndCountActive(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trustID, otherTrust := uuid.New(), uuid.New()

	kept := newBeneficiary(t, trustID, "kept", base)
	gone := newBeneficiary(t, trustID, "gone", base.Add(time.Minute))
	gone.ApplyDeactivation(base)
	elsewhere := newBeneficiary(t, otherTrust, "elsewhere", base)
	for _, b := range []*models.Beneficiary{kept, gone, elsewhere} {
		require.NoError(t, s.Create(ctx, b))
	}

	found, err := s.ListByIDs(ctx, trustID, []uuid.UUID{kept.ID, gone.ID, elsewhere.ID})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, kept.ID, found[0].ID)
	assert.Equal(t, gone.ID, found[1].ID)
	assert.False(t, found[1].IsActive)

	n, err := s.CountActive(ctx, []uuid.UUID{trustID, otherTrust})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountActive(ctx, []uuid.UUID{trustID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
