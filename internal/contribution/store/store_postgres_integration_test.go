//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"crummey/internal/contribution/models"
	"crummey/internal/contribution/store"
	trustmodels "crummey/internal/trust/models"
	truststore "crummey/internal/trust/store/trust"
	"crummey/pkg/domain"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	trust    *trustmodels.Trust
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateAll(ctx))
	s.now = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tr, err := trustmodels.NewTrust(uuid.New(), uuid.New(), "Family Trust", trustmodels.TrustTypeGiftTrust,
		domain.NewDate(2023, time.June, 1), 30, "Pat", "pat@example.com", s.now)
	s.Require().NoError(err)
	s.Require().NoError(truststore.NewPostgres(s.postgres.DB).Create(ctx, tr))
	s.trust = tr
}

func (s *PostgresStoreSuite) create(date domain.Date, amount string) *models.Contribution {
	c, err := models.NewContribution(uuid.New(), s.trust.ID, decimal.RequireFromString(amount), date,
		"premium", s.trust.OwnerID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(c.TakeSnapshot(s.trust.WithdrawalPeriodDays, []uuid.UUID{uuid.New(), uuid.New()}))
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c
}

func (s *PostgresStoreSuite) TestRoundTripAndOrdering() {
	ctx := context.Background()
	older := s.create(domain.NewDate(2023, 12, 20), "250.50")
	newer := s.create(domain.NewDate(2024, 1, 15), "18000")

	found, err := s.store.FindByID(ctx, older.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("250.50").Equal(found.Amount))
	s.True(found.ContributionDate.Equal(domain.NewDate(2023, 12, 20)))
	s.False(found.NoticesGenerated)
	s.Nil(found.NoticesGeneratedAt)
	s.Equal(older.BeneficiaryIDs, found.BeneficiaryIDs)
	s.Equal(30, found.WithdrawalPeriodDays)

	list, err := s.store.ListByTrust(ctx, s.trust.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(newer.ID, list[0].ID)

	across, err := s.store.ListByTrusts(ctx, []uuid.UUID{s.trust.ID, uuid.New()})
	s.Require().NoError(err)
	s.Len(across, 2)

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestMarkNoticesGeneratedFlipsOnce() {
	ctx := context.Background()
	c := s.create(domain.NewDate(2024, 1, 15), "100")

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		flipped  int
		failures int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.MarkNoticesGenerated(ctx, c.ID, s.now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
			}
			if ok {
				flipped++
			}
		}()
	}
	wg.Wait()
	s.Zero(failures)
	s.Equal(1, flipped)

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.True(found.NoticesGenerated)
	s.Require().NotNil(found.NoticesGeneratedAt)

	_, err = s.store.MarkNoticesGenerated(ctx, uuid.New(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
