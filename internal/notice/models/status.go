package models

import (
	dErrors "crummey/pkg/domain-errors"
)

// Status is the lifecycle state of a notice.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusDelivered    Status = "delivered"
	StatusBounced      Status = "bounced"
	StatusAcknowledged Status = "acknowledged"
)

// transitions is the full state graph. Acknowledgment is reachable from every
// non-terminal state because a beneficiary can sign before a delivery callback
// lands. A bounced notice only re-enters pending by an explicit requeue.
var transitions = map[Status][]Status{
	StatusPending:      {StatusSent, StatusAcknowledged},
	StatusSent:         {StatusDelivered, StatusBounced, StatusAcknowledged},
	StatusDelivered:    {StatusAcknowledged},
	StatusBounced:      {StatusPending, StatusAcknowledged},
	StatusAcknowledged: nil,
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusAcknowledged
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AwaitingAcknowledgment reports whether a reminder may still be useful.
func (s Status) AwaitingAcknowledgment() bool {
	return s == StatusSent || s == StatusDelivered
}

// ParseStatus validates a status filter value.
func ParseStatus(field, value string) (Status, error) {
	s := Status(value)
	if !s.IsValid() {
		return "", dErrors.Field(field, "status must be one of pending, sent, delivered, bounced, acknowledged")
	}
	return s, nil
}
