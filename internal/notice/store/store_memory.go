package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crummey/internal/notice/models"
	"crummey/pkg/domain"
	"crummey/pkg/platform/sentinel"
)

type pairKey struct {
	contributionID uuid.UUID
	beneficiaryID  uuid.UUID
}

// InMemory is a process-local notice store. Every conditional write checks
// and mutates under one lock, matching the single-row guarantees of Postgres.
type InMemory struct {
	mu      sync.RWMutex
	notices map[uuid.UUID]*models.Notice
	byToken map[string]uuid.UUID
	byPair  map[pairKey]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		notices: make(map[uuid.UUID]*models.Notice),
		byToken: make(map[string]uuid.UUID),
		byPair:  make(map[pairKey]uuid.UUID),
	}
}

// InsertIfAbsent stores n unless a notice for the same contribution and
// beneficiary exists. A token collision is an error.
func (s *InMemory) InsertIfAbsent(_ context.Context, n *models.Notice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{n.ContributionID, n.BeneficiaryID}
	if _, exists := s.byPair[key]; exists {
		return false, nil
	}
	if _, exists := s.byToken[n.AcknowledgmentToken]; exists {
		return false, sentinel.ErrAlreadyUsed
	}
	if _, exists := s.notices[n.ID]; exists {
		return false, sentinel.ErrAlreadyUsed
	}
	cp := *n
	s.notices[n.ID] = &cp
	s.byToken[n.AcknowledgmentToken] = n.ID
	s.byPair[key] = n.ID
	return true, nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.get(id)
}

func (s *InMemory) FindByMessageID(_ context.Context, messageID string) (*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if messageID == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, n := range s.notices {
		if n.MessageID == messageID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns notices matching every set filter, oldest first.
func (s *InMemory) List(_ context.Context, f models.ListFilter) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(matches(f)), nil
}

// Count returns how many notices match every set filter.
func (s *InMemory) Count(_ context.Context, f models.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keep := matches(f)
	n := 0
	for _, notice := range s.notices {
		if keep(notice) {
			n++
		}
	}
	return n, nil
}

func matches(f models.ListFilter) func(*models.Notice) bool {
	var scope map[uuid.UUID]bool
	if f.TrustIDs != nil {
		scope = make(map[uuid.UUID]bool, len(f.TrustIDs))
		for _, id := range f.TrustIDs {
			scope[id] = true
		}
	}
	return func(n *models.Notice) bool {
		switch {
		case scope != nil && !scope[n.TrustID]:
			return false
		case f.TrustID != nil && n.TrustID != *f.TrustID:
			return false
		case f.ContributionID != nil && n.ContributionID != *f.ContributionID:
			return false
		case f.Status != nil && n.Status != *f.Status:
			return false
		}
		return true
	}
}

func (s *InMemory) ListByContribution(_ context.Context, contributionID uuid.UUID) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(n *models.Notice) bool { return n.ContributionID == contributionID }), nil
}

// ListReminderDue returns sent or delivered notices without a reminder whose
// deadline falls within [from, until].
func (s *InMemory) ListReminderDue(_ context.Context, from, until domain.Date) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(n *models.Notice) bool {
		return n.Status.AwaitingAcknowledgment() &&
			n.ReminderSentAt == nil &&
			!n.WithdrawalDeadline.Before(from) &&
			!n.WithdrawalDeadline.After(until)
	}), nil
}

// ListUpcomingDeadlines returns sent notices of the given trusts whose
// deadline falls within [from, until], soonest first.
func (s *InMemory) ListUpcomingDeadlines(_ context.Context, trustIDs []uuid.UUID, from, until domain.Date) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.collect(func(n *models.Notice) bool {
		return n.Status == models.StatusSent &&
			slices.Contains(trustIDs, n.TrustID) &&
			!n.WithdrawalDeadline.Before(from) &&
			!n.WithdrawalDeadline.After(until)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WithdrawalDeadline.Before(out[j].WithdrawalDeadline)
	})
	return out, nil
}

// ClaimSend takes the dispatch lease on a pending notice until leaseUntil.
// Returns ErrInvalidState when the notice is not pending and ErrConflict when
// another sender holds an unexpired lease.
func (s *InMemory) ClaimSend(_ context.Context, id uuid.UUID, now, leaseUntil time.Time) (*models.Notice, error) {
	return s.update(id, func(n *models.Notice) error {
		if n.Status != models.StatusPending {
			return sentinel.ErrInvalidState
		}
		if n.LeaseHeld(now) {
			return sentinel.ErrConflict
		}
		n.SendLeaseUntil = &leaseUntil
		return nil
	})
}

// CompleteSend moves a pending notice to sent.
func (s *InMemory) CompleteSend(_ context.Context, id uuid.UUID, messageID string, at time.Time) (*models.Notice, error) {
	return s.update(id, func(n *models.Notice) error {
		if n.Status != models.StatusPending {
			return sentinel.ErrInvalidState
		}
		n.ApplySent(messageID, at)
		return nil
	})
}

// FailSend releases the lease and records the dispatch error.
func (s *InMemory) FailSend(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	_, err := s.update(id, func(n *models.Notice) error {
		if n.Status != models.StatusPending {
			return sentinel.ErrInvalidState
		}
		n.ApplySendFailure(reason, at)
		return nil
	})
	return err
}

// Acknowledge applies the signer unless the notice is already acknowledged.
func (s *InMemory) Acknowledge(_ context.Context, id uuid.UUID, ack models.Acknowledgment) (*models.Notice, error) {
	return s.update(id, func(n *models.Notice) error {
		if n.IsAcknowledged() {
			return sentinel.ErrInvalidState
		}
		n.ApplyAcknowledgment(ack)
		return nil
	})
}

// Transition moves the notice from -> to only if it is currently in from.
func (s *InMemory) Transition(_ context.Context, id uuid.UUID, from, to models.Status, at time.Time) (*models.Notice, error) {
	return s.update(id, func(n *models.Notice) error {
		if n.Status != from {
			return sentinel.ErrInvalidState
		}
		n.ApplyTransition(to, at)
		return nil
	})
}

// ClaimReminder stamps reminder_sent_at once. Returns ErrInvalidState when a
// reminder was already claimed or the notice left sent/delivered.
func (s *InMemory) ClaimReminder(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.update(id, func(n *models.Notice) error {
		if n.ReminderSentAt != nil || !n.Status.AwaitingAcknowledgment() {
			return sentinel.ErrInvalidState
		}
		n.ReminderSentAt = &at
		return nil
	})
	return err
}

// ReleaseReminder clears a claimed reminder after a failed dispatch.
func (s *InMemory) ReleaseReminder(_ context.Context, id uuid.UUID) error {
	_, err := s.update(id, func(n *models.Notice) error {
		n.ReminderSentAt = nil
		return nil
	})
	return err
}

func (s *InMemory) update(id uuid.UUID, apply func(*models.Notice) error) (*models.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *n
	if err := apply(&cp); err != nil {
		return nil, err
	}
	s.notices[id] = &cp
	out := cp
	return &out, nil
}

func (s *InMemory) get(id uuid.UUID) (*models.Notice, error) {
	n, ok := s.notices[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemory) collect(keep func(*models.Notice) bool) []*models.Notice {
	var out []*models.Notice
	for _, n := range s.notices {
		if keep(n) {
			cp := *n
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
