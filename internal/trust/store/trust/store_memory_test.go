package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crummey/internal/trust/models"
	"crummey/pkg/domain"
	"crummey/pkg/platform/sentinel"
)

func newTrust(t *testing.T, owner uuid.UUID, createdAt time.Time) *models.Trust {
	t.Helper()
	tr, err := models.NewTrust(uuid.New(), owner, "Family Trust", models.TrustTypeILIT,
		domain.NewDate(2023, time.June, 1), 30, "Pat", "pat@example.com", createdAt)
	require.NoError(t, err)
	return tr
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create then find returns a copy", func(t *testing.T) {
		s := NewInMemory()
		tr := newTrust(t, owner, base)
		require.NoError(t, s.Create(ctx, tr))

		found, err := s.FindByID(ctx, tr.ID)
		require.NoError(t, err)
		found.Name = "changed"

		again, err := s.FindByID(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Family Trust", again.Name)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		s := NewInMemory()
		tr := newTrust(t, owner, base)
		require.NoError(t, s.Create(ctx, tr))
		assert.ErrorIs(t, s.Create(ctx, tr), sentinel.ErrAlreadyUsed)
	})

	t.Run("missing id is not found", func(t *testing.T) {
		_, err := NewInMemory().FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("lists by owner newest first", func(t *testing.T) {
		s := NewInMemory()
		older := newTrust(t, owner, base)
		newer := newTrust(t, owner, base.Add(time.Hour))
		require.NoError(t, s.Create(ctx, older))
		require.NoError(t, s.Create(ctx, newer))
		require.NoError(t, s.Create(ctx, newTrust(t, uuid.New(), base)))

		list, err := s.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
	})

	t.Run("execute persists only when validate passes", func(t *testing.T) {
		s := NewInMemory()
		tr := newTrust(t, owner, base)
		require.NoError(t, s.Create(ctx, tr))

		boom := errors.New("boom")
		_, err := s.Execute(ctx, tr.ID,
			func(*models.Trust) error { return boom },
			func(t *models.Trust) { t.Name = "never" },
		)
		assert.ErrorIs(t, err, boom)

		updated, err := s.Execute(ctx, tr.ID,
			func(*models.Trust) error { return nil },
			func(t *models.Trust) { t.ApplyDeactivation(base) },
		)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		found, err := s.FindByID(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Family Trust", found.Name)
		assert.False(t, found.IsActive)
	})
}

func TestInMemoryCountActiveByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	owner := uuid.New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	active := newTrust(t, owner, now)
	closed := newTrust(t, owner, now)
	closed.ApplyDeactivation(now)
	require.NoError(t, s.Create(ctx, active))
	require.NoError(t, s.Create(ctx, closed))
	require.NoError(t, s.Create(ctx, newTrust(t, uuid.New(), now)))

	n, err := s.CountActiveByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
