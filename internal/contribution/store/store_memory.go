package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crummey/internal/contribution/models"
	"crummey/pkg/platform/sentinel"
)

// InMemory is a process-local contribution store for development and tests.
type InMemory struct {
	mu            sync.RWMutex
	contributions map[uuid.UUID]*models.Contribution
}

func NewInMemory() *InMemory {
	return &InMemory{contributions: make(map[uuid.UUID]*models.Contribution)}
}

func (s *InMemory) Create(_ context.Context, c *models.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contributions[c.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.contributions[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contributions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// ListByTrust returns the trust's contributions, most recent contribution date first.
func (s *InMemory) ListByTrust(_ context.Context, trustID uuid.UUID) ([]*models.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Contribution
	for _, c := range s.contributions {
		if c.TrustID == trustID {
			out = append(out, c.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListByTrusts returns contributions for any of trustIDs, most recent first.
func (s *InMemory) ListByTrusts(_ context.Context, trustIDs []uuid.UUID) ([]*models.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := make(map[uuid.UUID]bool, len(trustIDs))
	for _, id := range trustIDs {
		scope[id] = true
	}
	var out []*models.Contribution
	for _, c := range s.contributions {
		if scope[c.TrustID] {
			out = append(out, c.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// MarkNoticesGenerated flips the flag if it is still false. It reports whether
// this call performed the flip.
func (s *InMemory) MarkNoticesGenerated(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contributions[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if c.NoticesGenerated {
		return false, nil
	}
	cp := *c
	cp.NoticesGenerated = true
	cp.NoticesGeneratedAt = &at
	s.contributions[id] = &cp
	return true, nil
}

func sortNewestFirst(out []*models.Contribution) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContributionDate.Equal(out[j].ContributionDate) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ContributionDate.After(out[j].ContributionDate)
	})
}
