package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crummey/internal/contribution/models"
	"crummey/pkg/domain"
	"crummey/pkg/platform/sentinel"
)

func newContribution(t *testing.T, trustID uuid.UUID, date domain.Date) *models.Contribution {
	t.Helper()
	c, err := models.NewContribution(uuid.New(), trustID, decimal.NewFromInt(500), date, "", uuid.New(), time.Now())
	require.NoError(t, err)
	return c
}

func TestInMemoryMarkNoticesGeneratedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	c := newContribution(t, uuid.New(), domain.NewDate(2024, 1, 15))
	require.NoError(t, s.Create(ctx, c))

	var flips atomic.Int32
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := s.MarkNoticesGenerated(ctx, c.ID, time.Now())
			assert.NoError(t, err)
			if flipped {
				flips.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), flips.Load())

	found, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, found.NoticesGenerated)
	assert.NotNil(t, found.NoticesGeneratedAt)

	_, err = s.MarkNoticesGenerated(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryListOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	trustID := uuid.New()
	older := newContribution(t, trustID, domain.NewDate(2023, 12, 1))
	newer := newContribution(t, trustID, domain.NewDate(2024, 1, 15))
	other := newContribution(t, uuid.New(), domain.NewDate(2024, 2, 1))
	for _, c := range []*models.Contribution{older, newer, other} {
		require.NoError(t, s.Create(ctx, c))
	}

	list, err := s.ListByTrust(ctx, trustID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	all, err := s.ListByTrusts(ctx, []uuid.UUID{trustID, other.TrustID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)
}
