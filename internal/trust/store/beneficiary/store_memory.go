package beneficiary

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crummey/internal/trust/models"
	"crummey/pkg/platform/sentinel"
)

// InMemory is a process-local beneficiary store for development and tests.
type InMemory struct {
	mu            sync.RWMutex
	beneficiaries map[uuid.UUID]*models.Beneficiary
}

func NewInMemory() *InMemory {
	return &InMemory{beneficiaries: make(map[uuid.UUID]*models.Beneficiary)}
}

func (s *InMemory) Create(_ context.Context, b *models.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.beneficiaries[b.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *b
	s.beneficiaries[b.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.beneficiaries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ListByTrust returns every beneficiary of the trust, oldest first.
func (s *InMemory) ListByTrust(_ context.Context, trustID uuid.UUID) ([]*models.Beneficiary, error) {
	return s.filter(func(b *models.Beneficiary) bool { return b.TrustID == trustID }), nil
}

// ListEligible returns beneficiaries that were active and already existed at asOf.
func (s *InMemory) ListEligible(_ context.Context, trustID uuid.UUID, asOf time.Time) ([]*models.Beneficiary, error) {
	return s.filter(func(b *models.Beneficiary) bool {
		return b.TrustID == trustID && b.EligibleAt(asOf)
	}), nil
}

// ListByIDs returns the trust's beneficiaries among ids, active or not.
func (s *InMemory) ListByIDs(_ context.Context, trustID uuid.UUID, ids []uuid.UUID) ([]*models.Beneficiary, error) {
	return s.filter(func(b *models.Beneficiary) bool {
		return b.TrustID == trustID && slices.Contains(ids, b.ID)
	}), nil
}

// CountActive counts active beneficiaries across the given trusts.
func (s *InMemory) CountActive(_ context.Context, trustIDs []uuid.UUID) (int, error) {
	return len(s.filter(func(b *models.Beneficiary) bool {
		return b.IsActive && slices.Contains(trustIDs, b.TrustID)
	})), nil
}

func (s *InMemory) filter(keep func(*models.Beneficiary) bool) []*models.Beneficiary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Beneficiary
	for _, b := range s.beneficiaries {
		if keep(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Execute runs validate then mutate under the store lock.
func (s *InMemory) Execute(_ context.Context, id uuid.UUID, validate func(*models.Beneficiary) error, mutate func(*models.Beneficiary)) (*models.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beneficiaries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.beneficiaries[id] = &cp
	out := cp
	return &out, nil
}
