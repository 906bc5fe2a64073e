package trust

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"crummey/internal/trust/models"
	"crummey/pkg/platform/sentinel"
)

// InMemory is a process-local trust store for development and tests.
type InMemory struct {
	mu     sync.RWMutex
	trusts map[uuid.UUID]*models.Trust
}

func NewInMemory() *InMemory {
	return &InMemory{trusts: make(map[uuid.UUID]*models.Trust)}
}

func (s *InMemory) Create(_ context.Context, t *models.Trust) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trusts[t.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *t
	s.trusts[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trusts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListByOwner returns the owner's trusts, newest first.
func (s *InMemory) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Trust
	for _, t := range s.trusts {
		if t.OwnerID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountActiveByOwner counts the owner's active trusts.
func (s *InMemory) CountActiveByOwner(_ context.Context, ownerID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.trusts {
		if t.OwnerID == ownerID && t.IsActive {
			n++
		}
	}
	return n, nil
}

// Execute runs validate then mutate under the store lock, persisting only
// when validate succeeds.
func (s *InMemory) Execute(_ context.Context, id uuid.UUID, validate func(*models.Trust) error, mutate func(*models.Trust)) (*models.Trust, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trusts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.trusts[id] = &cp
	out := cp
	return &out, nil
}
