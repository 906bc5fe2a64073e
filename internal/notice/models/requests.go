package models

import (
	"strings"

	"github.com/google/uuid"

	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	"crummey/pkg/platform/validation"
)

// SendRequest is the body of POST /notices/send. A missing or empty
// notice_ids selects every pending notice the caller can see.
type SendRequest struct {
	NoticeIDs []string `json:"notice_ids" validate:"omitempty,max=500"`

	ids []uuid.UUID
}

func (r *SendRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if len(r.NoticeIDs) == 0 {
		return nil
	}
	ids, err := domain.ParseIDs("notice_ids", r.NoticeIDs)
	if err != nil {
		return err
	}
	r.ids = ids
	return nil
}

// IDs returns the parsed ids, or nil when all pending notices are selected.
func (r *SendRequest) IDs() []uuid.UUID {
	if len(r.ids) == 0 {
		return nil
	}
	return r.ids
}

// AcknowledgeRequest is the body of POST /acknowledge/{token}. The signature
// is checked by the service, after an existing acknowledgment has been ruled out.
type AcknowledgeRequest struct {
	SignatureName string `json:"signature_name"`
}

func (r *AcknowledgeRequest) Normalize() {
	r.SignatureName = strings.TrimSpace(r.SignatureName)
}

func (r *AcknowledgeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ValidateSignature enforces the minimum signature length.
func ValidateSignature(name string) error {
	if len([]rune(strings.TrimSpace(name))) < MinSignatureLength {
		return dErrors.Field("signature_name", "signature_name must be at least 2 characters")
	}
	return nil
}

// DeliveryEvent names a dispatcher callback.
type DeliveryEvent string

const (
	DeliveryEventDelivered DeliveryEvent = "delivered"
	DeliveryEventBounced   DeliveryEvent = "bounced"
)

// DeliveryEventRequest is the body of POST /webhooks/delivery.
type DeliveryEventRequest struct {
	MessageID string `json:"message_id" validate:"notblank,max=255"`
	Event     string `json:"event" validate:"required,oneof=delivered bounced"`
}

// Normalize accepts the Message-ID header form with angle brackets.
func (r *DeliveryEventRequest) Normalize() {
	r.MessageID = strings.Trim(strings.TrimSpace(r.MessageID), "<>")
	r.Event = strings.ToLower(strings.TrimSpace(r.Event))
}

func (r *DeliveryEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return validation.Struct(r)
}
