package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
)

// MinSignatureLength is the shortest trimmed name accepted as a signature.
const MinSignatureLength = 2

// Notice is one beneficiary's right-to-withdraw notice for one contribution.
//
// Invariants:
//   - Status == StatusAcknowledged iff AcknowledgedAt != nil
//   - AcknowledgmentToken is set at creation and never changes
//   - WithdrawalDeadline and WithdrawalAmount are fixed at generation
//   - One notice per (ContributionID, BeneficiaryID)
type Notice struct {
	ID                    uuid.UUID       `json:"id"`
	ContributionID        uuid.UUID       `json:"contribution_id"`
	BeneficiaryID         uuid.UUID       `json:"beneficiary_id"`
	TrustID               uuid.UUID       `json:"trust_id"`
	RecipientName         string          `json:"recipient_name"`
	RecipientEmail        string          `json:"recipient_email"`
	WithdrawalAmount      decimal.Decimal `json:"withdrawal_amount"`
	WithdrawalDeadline    domain.Date     `json:"withdrawal_deadline"`
	NoticeDate            domain.Date     `json:"notice_date"`
	Status                Status          `json:"status"`
	AcknowledgmentToken   string          `json:"acknowledgment_token"`
	SentAt                *time.Time      `json:"sent_at"`
	DeliveredAt           *time.Time      `json:"delivered_at"`
	BouncedAt             *time.Time      `json:"bounced_at"`
	AcknowledgedAt        *time.Time      `json:"acknowledged_at"`
	AcknowledgedByName    string          `json:"acknowledged_by_name,omitempty"`
	AcknowledgedIP        string          `json:"acknowledged_ip,omitempty"`
	AcknowledgedUserAgent string          `json:"acknowledged_user_agent,omitempty"`
	MessageID             string          `json:"message_id,omitempty"`
	LastError             string          `json:"last_error,omitempty"`
	SendLeaseUntil        *time.Time      `json:"-"`
	ReminderSentAt        *time.Time      `json:"reminder_sent_at"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Draft is a notice computed by the generator and not yet persisted.
type Draft struct {
	ContributionID      uuid.UUID
	BeneficiaryID       uuid.UUID
	TrustID             uuid.UUID
	RecipientName       string
	RecipientEmail      string
	WithdrawalAmount    decimal.Decimal
	WithdrawalDeadline  domain.Date
	NoticeDate          domain.Date
	AcknowledgmentToken string
}

// NewNotice materializes a draft as a pending notice.
func NewNotice(id uuid.UUID, d Draft, now time.Time) (*Notice, error) {
	n := &Notice{
		ID:                  id,
		ContributionID:      d.ContributionID,
		BeneficiaryID:       d.BeneficiaryID,
		TrustID:             d.TrustID,
		RecipientName:       d.RecipientName,
		RecipientEmail:      d.RecipientEmail,
		WithdrawalAmount:    d.WithdrawalAmount,
		WithdrawalDeadline:  d.WithdrawalDeadline,
		NoticeDate:          d.NoticeDate,
		Status:              StatusPending,
		AcknowledgmentToken: d.AcknowledgmentToken,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := n.checkInvariants(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Notice) checkInvariants() error {
	switch {
	case n.ContributionID == uuid.Nil || n.BeneficiaryID == uuid.Nil || n.TrustID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "notice must reference contribution, beneficiary and trust")
	case n.AcknowledgmentToken == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "notice requires an acknowledgment token")
	case n.RecipientEmail == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "notice requires a recipient email")
	case !n.WithdrawalAmount.IsPositive():
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal amount must be positive")
	case n.WithdrawalDeadline.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal deadline is required")
	}
	return nil
}

// IsLapsed reports whether the withdrawal right expired before today.
// The deadline day itself is still open.
func (n *Notice) IsLapsed(today domain.Date) bool {
	return today.After(n.WithdrawalDeadline)
}

// DaysRemaining is the number of calendar days from today to the deadline,
// negative once lapsed.
func (n *Notice) DaysRemaining(today domain.Date) int {
	return today.DaysUntil(n.WithdrawalDeadline)
}

// IsAcknowledged reports whether the notice reached its terminal state.
func (n *Notice) IsAcknowledged() bool {
	return n.Status == StatusAcknowledged
}

// LeaseHeld reports whether another sender holds the dispatch lease at now.
func (n *Notice) LeaseHeld(now time.Time) bool {
	return n.SendLeaseUntil != nil && n.SendLeaseUntil.After(now)
}

// ApplySent records a successful dispatch.
func (n *Notice) ApplySent(messageID string, at time.Time) {
	n.Status = StatusSent
	n.SentAt = &at
	n.MessageID = messageID
	n.LastError = ""
	n.SendLeaseUntil = nil
	n.UpdatedAt = at
}

// ApplySendFailure releases the lease and keeps the notice pending for retry.
func (n *Notice) ApplySendFailure(reason string, at time.Time) {
	n.LastError = reason
	n.SendLeaseUntil = nil
	n.UpdatedAt = at
}

// ApplyAcknowledgment stamps the signer. Callers check CanTransitionTo first.
func (n *Notice) ApplyAcknowledgment(a Acknowledgment) {
	at := a.At
	n.Status = StatusAcknowledged
	n.AcknowledgedAt = &at
	n.AcknowledgedByName = a.SignatureName
	n.AcknowledgedIP = a.IP
	n.AcknowledgedUserAgent = a.UserAgent
	n.SendLeaseUntil = nil
	n.UpdatedAt = at
}

// ApplyTransition moves to next and stamps the matching timestamp.
func (n *Notice) ApplyTransition(next Status, at time.Time) {
	switch next {
	case StatusDelivered:
		n.DeliveredAt = &at
	case StatusBounced:
		n.BouncedAt = &at
	case StatusPending:
		n.LastError = ""
		n.SendLeaseUntil = nil
	}
	n.Status = next
	n.UpdatedAt = at
}

// Acknowledgment is what a signer submits through the public page.
type Acknowledgment struct {
	SignatureName string
	IP            string
	UserAgent     string
	At            time.Time
}

// Receipt is the acknowledgment record returned to the signer.
type Receipt struct {
	NoticeID           uuid.UUID  `json:"notice_id"`
	Status             Status     `json:"status"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at"`
	AcknowledgedByName string     `json:"acknowledged_by_name"`
}

// Receipt returns the stored acknowledgment.
func (n *Notice) Receipt() Receipt {
	return Receipt{
		NoticeID:           n.ID,
		Status:             n.Status,
		AcknowledgedAt:     n.AcknowledgedAt,
		AcknowledgedByName: n.AcknowledgedByName,
	}
}

// Summary is the public view of a notice behind its acknowledgment token.
type Summary struct {
	ID                 uuid.UUID       `json:"id"`
	TrustName          string          `json:"trust_name"`
	RecipientName      string          `json:"recipient_name"`
	NoticeDate         domain.Date     `json:"notice_date"`
	WithdrawalAmount   decimal.Decimal `json:"withdrawal_amount"`
	WithdrawalDeadline domain.Date     `json:"withdrawal_deadline"`
	Status             Status          `json:"status"`
	AcknowledgedAt     *time.Time      `json:"acknowledged_at"`
	AcknowledgedByName string          `json:"acknowledged_by_name"`
	WithdrawalLapsed   bool            `json:"withdrawal_lapsed"`
	DaysRemaining      int             `json:"days_remaining"`
}

// Summary builds the public view as of today.
func (n *Notice) Summary(trustName string, today domain.Date) Summary {
	remaining := n.DaysRemaining(today)
	if remaining < 0 {
		remaining = 0
	}
	return Summary{
		ID:                 n.ID,
		TrustName:          trustName,
		RecipientName:      n.RecipientName,
		NoticeDate:         n.NoticeDate,
		WithdrawalAmount:   n.WithdrawalAmount,
		WithdrawalDeadline: n.WithdrawalDeadline,
		Status:             n.Status,
		AcknowledgedAt:     n.AcknowledgedAt,
		AcknowledgedByName: n.AcknowledgedByName,
		WithdrawalLapsed:   n.IsLapsed(today),
		DaysRemaining:      remaining,
	}
}

// Payload is a fully rendered message handed to a dispatcher.
type Payload struct {
	NoticeID       uuid.UUID
	Subject        string
	HTMLBody       string
	TextBody       string
	RecipientName  string
	RecipientEmail string
}

// SendResult aggregates a batch send. Errors never includes notices the
// caller could not see.
type SendResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// ReminderResult aggregates a reminder run.
type ReminderResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// ListFilter narrows notice listings. Nil fields do not filter.
type ListFilter struct {
	TrustIDs       []uuid.UUID
	TrustID        *uuid.UUID
	ContributionID *uuid.UUID
	Status         *Status
}
