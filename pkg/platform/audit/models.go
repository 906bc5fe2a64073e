// Package audit records an immutable, append-only trail of every
// state-changing operation on trusts, beneficiaries, contributions and notices.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names what happened.
type Action string

const (
	// Trust and beneficiary records
	ActionTrustCreated           Action = "trust_created"
	ActionTrustUpdated           Action = "trust_updated"
	ActionTrustDeactivated       Action = "trust_deactivated"
	ActionBeneficiaryCreated     Action = "beneficiary_created"
	ActionBeneficiaryUpdated     Action = "beneficiary_updated"
	ActionBeneficiaryDeactivated Action = "beneficiary_deactivated"

	// Contributions and generation
	ActionContributionCreated Action = "contribution_created"
	ActionNoticesGenerated    Action = "notices_generated"

	// Notice lifecycle
	ActionNoticeSent         Action = "notice_sent"
	ActionNoticeDelivered    Action = "notice_delivered"
	ActionNoticeBounced      Action = "notice_bounced"
	ActionNoticeRequeued     Action = "notice_requeued"
	ActionNoticeAcknowledged Action = "notice_acknowledged"
	ActionReminderSent       Action = "notice_reminder_sent"
)

// EntityType names the kind of record an entry is about.
type EntityType string

const (
	EntityTrust        EntityType = "trust"
	EntityBeneficiary  EntityType = "beneficiary"
	EntityContribution EntityType = "contribution"
	EntityNotice       EntityType = "notice"
)

// EventCategory classifies entries for retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance for the gift
	// exclusion: notices reaching beneficiaries and being acknowledged.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine record management.
	CategoryOperations EventCategory = "operations"
)

var actionCategories = map[Action]EventCategory{
	ActionNoticesGenerated:    CategoryCompliance,
	ActionNoticeSent:          CategoryCompliance,
	ActionNoticeDelivered:     CategoryCompliance,
	ActionNoticeBounced:       CategoryCompliance,
	ActionNoticeAcknowledged:  CategoryCompliance,
	ActionReminderSent:        CategoryCompliance,
	ActionContributionCreated: CategoryCompliance,
}

// Category returns the category for this action.
// Unlisted actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Entry is one immutable audit record. ActorID is nil for actions performed
// by an unauthenticated party (acknowledgment) or by the system (webhooks,
// reminders).
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id"`
	Action     Action         `json:"action"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Store is the append-only persistence port. There is no update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]Entry, error)
}

// Stream fans entries out to downstream consumers (e.g. a Kafka topic).
type Stream interface {
	Publish(ctx context.Context, entry Entry) error
}

// Actor returns a pointer to id, or nil when id is the zero UUID.
func Actor(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
